// Package sqlite stores the product catalog in a SQLite database file. The
// table layout matches the Postgres store so either can back the catalog.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// DefaultTable is the table holding the mapped catalog.
const DefaultTable = "laptop_data"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("op=sqlite.Open: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("op=sqlite.Open: %w", err)
	}
	return db, nil
}

// CatalogRepo implements domain.CatalogStore on database/sql.
type CatalogRepo struct {
	DB    *sql.DB
	Table string
}

// NewCatalogRepo constructs a CatalogRepo; an empty table selects DefaultTable.
func NewCatalogRepo(db *sql.DB, table string) (*CatalogRepo, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("op=sqlite.catalog.new: %w: table name %q", domain.ErrInvalidArgument, table)
	}
	return &CatalogRepo{DB: db, Table: table}, nil
}

func (r *CatalogRepo) ident() string { return `"` + strings.ReplaceAll(r.Table, `"`, `""`) + `"` }

// Load returns every row in insertion order; a missing table is an empty catalog.
func (r *CatalogRepo) Load(ctx domain.Context) ([]domain.Product, error) {
	ctx, span := otel.Tracer("repo.sqlite").Start(ctx, "catalog.Load")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "sqlite"), attribute.String("db.sql.table", r.Table))

	var name string
	err := r.DB.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, r.Table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=sqlite.catalog.load: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT brand, model, description, price, raw_price, mapped_dictionary, extra FROM `+r.ident()+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("op=sqlite.catalog.load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Product
	for rows.Next() {
		var (
			p             domain.Product
			mapped, extra sql.NullString
		)
		if err := rows.Scan(&p.Brand, &p.Model, &p.Description, &p.Price, &p.RawPrice, &mapped, &extra); err != nil {
			return nil, fmt.Errorf("op=sqlite.catalog.load: %w", err)
		}
		if mapped.Valid && mapped.String != "" {
			var prof domain.Profile
			if err := json.Unmarshal([]byte(mapped.String), &prof); err != nil {
				return nil, fmt.Errorf("op=sqlite.catalog.load: %w: row %d mapped_dictionary: %v", domain.ErrCatalogSchema, len(out), err)
			}
			p.Mapped = &prof
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &p.Extra); err != nil {
				return nil, fmt.Errorf("op=sqlite.catalog.load: %w: row %d extra: %v", domain.ErrCatalogSchema, len(out), err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=sqlite.catalog.load: %w", err)
	}
	return out, nil
}

// Replace drops, recreates and fills the table in one transaction.
func (r *CatalogRepo) Replace(ctx domain.Context, products []domain.Product) (err error) {
	ctx, span := otel.Tracer("repo.sqlite").Start(ctx, "catalog.Replace")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "sqlite"), attribute.Int("db.rows", len(products)))

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("op=sqlite.catalog.replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+r.ident()); err != nil {
		return fmt.Errorf("op=sqlite.catalog.replace: drop: %w", err)
	}
	create := `CREATE TABLE ` + r.ident() + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		brand TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		raw_price TEXT NOT NULL DEFAULT '',
		mapped_dictionary TEXT,
		extra TEXT
	)`
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("op=sqlite.catalog.replace: create: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+r.ident()+
		` (brand, model, description, price, raw_price, mapped_dictionary, extra) VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("op=sqlite.catalog.replace: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, p := range products {
		var mapped, extra sql.NullString
		if p.Mapped != nil {
			b, mErr := json.Marshal(p.Mapped)
			if mErr != nil {
				err = fmt.Errorf("op=sqlite.catalog.replace: row %d: %w", i, mErr)
				return err
			}
			mapped = sql.NullString{String: string(b), Valid: true}
		}
		if len(p.Extra) > 0 {
			b, mErr := json.Marshal(p.Extra)
			if mErr != nil {
				err = fmt.Errorf("op=sqlite.catalog.replace: row %d: %w", i, mErr)
				return err
			}
			extra = sql.NullString{String: string(b), Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, p.Brand, p.Model, p.Description, p.Price, p.RawPrice, mapped, extra); err != nil {
			return fmt.Errorf("op=sqlite.catalog.replace: row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("op=sqlite.catalog.replace: commit: %w", err)
	}
	return nil
}
