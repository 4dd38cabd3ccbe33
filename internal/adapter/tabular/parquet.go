package tabular

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// readParquet reads a flat Parquet file; every leaf column becomes a string
// cell and nulls become empty cells.
func readParquet(path string) (table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table{}, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return table{}, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return table{}, err
	}

	var t table
	for _, fld := range pf.Schema().Fields() {
		t.header = append(t.header, fld.Name())
	}
	if len(t.header) == 0 {
		return table{}, fmt.Errorf("%w: parquet schema has no columns", errEmpty)
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]string, len(t.header))
				for _, v := range row {
					if c := v.Column(); c >= 0 && c < len(cells) {
						cells[c] = valueString(v)
					}
				}
				t.rows = append(t.rows, cells)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return table{}, err
			}
		}
		if err := rows.Close(); err != nil {
			return table{}, err
		}
	}
	return t, nil
}

func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return ""
}

// writeParquet writes every column as an optional UTF-8 string.
func writeParquet(path string, t table) (err error) {
	group := parquet.Group{}
	for _, h := range t.header {
		group[h] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("laptop_data", group)

	// the schema orders columns by name; map them back to table positions
	pos := make([]int, 0, len(t.header))
	index := make(map[string]int, len(t.header))
	for i, h := range t.header {
		index[h] = i
	}
	for _, fld := range schema.Fields() {
		pos = append(pos, index[fld.Name()])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := parquet.NewWriter(f, schema)
	rows := make([]parquet.Row, 0, len(t.rows))
	for _, r := range t.rows {
		row := make(parquet.Row, len(pos))
		for col, src := range pos {
			if src < len(r) && r[src] != "" {
				row[col] = parquet.ByteArrayValue([]byte(r[src])).Level(0, 1, col)
			} else {
				row[col] = parquet.NullValue().Level(0, 0, col)
			}
		}
		rows = append(rows, row)
	}
	if _, err := w.WriteRows(rows); err != nil {
		return err
	}
	return w.Close()
}
