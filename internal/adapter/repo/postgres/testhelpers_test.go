package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

func boolRow(v bool) rowStub {
	return rowStub{scan: func(dest ...any) error {
		*(dest[0].(*bool)) = v
		return nil
	}}
}

// rowsStub implements the parts of pgx.Rows the repos use.
type rowsStub struct {
	pgx.Rows
	data [][]any
	i    int
	err  error
}

func (r *rowsStub) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *rowsStub) Scan(dest ...any) error {
	row := r.data[r.i-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d values for %d targets", len(row), len(dest))
	}
	for k, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[k].(string)
		case *int64:
			*p = row[k].(int64)
		case *[]byte:
			if row[k] == nil {
				*p = nil
			} else {
				*p = row[k].([]byte)
			}
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

func (r *rowsStub) Close()     {}
func (r *rowsStub) Err() error { return r.err }

// txStub records statements and copied rows.
type txStub struct {
	pgx.Tx
	execs      []string
	execErrOn  string
	copied     [][]any
	copyTable  pgx.Identifier
	copyErr    error
	committed  bool
	rolledBack bool
}

func (t *txStub) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if t.execErrOn != "" && strings.Contains(sql, t.execErrOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	return pgconn.CommandTag{}, nil
}

func (t *txStub) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if t.copyErr != nil {
		return 0, t.copyErr
	}
	t.copyTable = table
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		t.copied = append(t.copied, vals)
	}
	return int64(len(t.copied)), nil
}

func (t *txStub) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *txStub) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// poolStub implements postgres.PgxPool for tests.
type poolStub struct {
	execs    []string
	execArgs [][]any
	execErr  error
	row      pgx.Row
	rows     *rowsStub
	queryErr error
	tx       *txStub
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.CommandTag{}, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.tx == nil {
		return nil, errors.New("no tx configured")
	}
	return p.tx, nil
}
