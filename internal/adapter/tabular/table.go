// Package tabular reads and writes catalog files in CSV, XLSX and Parquet,
// choosing the format by file extension.
package tabular

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// table is the format-neutral shape of a catalog file: a header row and
// string cells.
type table struct {
	header []string
	rows   [][]string
}

var knownColumns = map[string]bool{
	domain.ColumnBrand:       true,
	domain.ColumnModel:       true,
	domain.ColumnDescription: true,
	domain.ColumnPrice:       true,
	domain.ColumnMapped:      true,
}

// products converts rows into catalog products. Missing required columns are
// reported as domain.ErrCatalogSchema. Unknown columns are carried in Extra.
func (t table) products() ([]domain.Product, error) {
	idx := make(map[string]int, len(t.header))
	for i, h := range t.header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup && h != "" {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range domain.RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", domain.ErrCatalogSchema, strings.Join(missing, ", "))
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]domain.Product, 0, len(t.rows))
	for _, row := range t.rows {
		if blank(row) {
			continue
		}
		p := domain.Product{
			Brand:       cell(row, domain.ColumnBrand),
			Model:       cell(row, domain.ColumnModel),
			Description: cell(row, domain.ColumnDescription),
			RawPrice:    cell(row, domain.ColumnPrice),
		}
		p.Price = domain.NormalizePrice(p.RawPrice)
		if prof, ok := parseMapped(cell(row, domain.ColumnMapped)); ok {
			p.Mapped = &prof
		}
		for name, i := range idx {
			if knownColumns[name] || i >= len(row) || row[i] == "" {
				continue
			}
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[name] = row[i]
		}
		out = append(out, p)
	}
	return out, nil
}

// fromProducts builds the table written for a mapped catalog. Extra columns
// follow the known ones in name order.
func fromProducts(products []domain.Product) table {
	extraSet := map[string]bool{}
	for _, p := range products {
		for k := range p.Extra {
			if !knownColumns[k] {
				extraSet[k] = true
			}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	t := table{header: append([]string{
		domain.ColumnBrand, domain.ColumnModel, domain.ColumnDescription, domain.ColumnPrice, domain.ColumnMapped,
	}, extras...)}
	for _, p := range products {
		row := []string{p.Brand, p.Model, p.Description, strconv.FormatInt(p.Price, 10), ""}
		if p.Mapped != nil && !p.Mapped.IsZero() {
			b, err := json.Marshal(p.Mapped)
			if err == nil {
				row[4] = string(b)
			}
		}
		for _, k := range extras {
			row = append(row, p.Extra[k])
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// parseMapped accepts a JSON dictionary or the single-quoted dictionary form.
// Anything else counts as unmapped so the row is mapped again.
func parseMapped(s string) (domain.Profile, bool) {
	if s == "" {
		return domain.Profile{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &raw); err != nil {
			return domain.Profile{}, false
		}
	}
	p, err := domain.MappedProfileFromMap(raw)
	if err != nil {
		return domain.Profile{}, false
	}
	return p, true
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
