package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// DefaultCatalogTable is the table holding the mapped catalog.
const DefaultCatalogTable = "laptop_data"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// CatalogRepo stores the catalog as one table that is replaced wholesale.
type CatalogRepo struct {
	Pool  PgxPool
	Table string
}

// NewCatalogRepo constructs a CatalogRepo; an empty table name selects
// DefaultCatalogTable.
func NewCatalogRepo(p PgxPool, table string) (*CatalogRepo, error) {
	if table == "" {
		table = DefaultCatalogTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("op=catalog.new: %w: table name %q", domain.ErrInvalidArgument, table)
	}
	return &CatalogRepo{Pool: p, Table: table}, nil
}

func (r *CatalogRepo) ident() string { return pgx.Identifier{r.Table}.Sanitize() }

func (r *CatalogRepo) span(ctx domain.Context, name, op string) (domain.Context, trace.Span) {
	ctx, span := otel.Tracer("repo.catalog").Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", r.Table),
	)
	return ctx, span
}

// Load returns every catalog row in insertion order. A missing table yields
// an empty catalog.
func (r *CatalogRepo) Load(ctx domain.Context) ([]domain.Product, error) {
	ctx, span := r.span(ctx, "catalog.Load", "SELECT")
	defer span.End()

	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, r.ident()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("op=catalog.load: %w", err)
	}
	if !exists {
		return nil, nil
	}

	q := `SELECT brand, model, description, price, raw_price, mapped_dictionary, extra FROM ` + r.ident() + ` ORDER BY id`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=catalog.load: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			p      domain.Product
			mapped []byte
			extra  []byte
		)
		if err := rows.Scan(&p.Brand, &p.Model, &p.Description, &p.Price, &p.RawPrice, &mapped, &extra); err != nil {
			return nil, fmt.Errorf("op=catalog.load: %w", err)
		}
		if len(mapped) > 0 {
			var prof domain.Profile
			if err := json.Unmarshal(mapped, &prof); err != nil {
				return nil, fmt.Errorf("op=catalog.load: %w: row %d mapped_dictionary: %v", domain.ErrCatalogSchema, len(out), err)
			}
			p.Mapped = &prof
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &p.Extra); err != nil {
				return nil, fmt.Errorf("op=catalog.load: %w: row %d extra: %v", domain.ErrCatalogSchema, len(out), err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=catalog.load: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// Replace drops and recreates the catalog table and copies products into it
// inside one transaction, so readers see either the old or the new catalog.
func (r *CatalogRepo) Replace(ctx domain.Context, products []domain.Product) (err error) {
	ctx, span := r.span(ctx, "catalog.Replace", "COPY")
	defer span.End()
	span.SetAttributes(attribute.Int("db.rows", len(products)))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=catalog.replace: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, `DROP TABLE IF EXISTS `+r.ident()); err != nil {
		return fmt.Errorf("op=catalog.replace: drop: %w", err)
	}
	create := `CREATE TABLE ` + r.ident() + ` (
		id BIGSERIAL PRIMARY KEY,
		brand TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		price BIGINT NOT NULL DEFAULT 0,
		raw_price TEXT NOT NULL DEFAULT '',
		mapped_dictionary JSONB,
		extra JSONB
	)`
	if _, err = tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("op=catalog.replace: create: %w", err)
	}

	rows := make([][]any, 0, len(products))
	for i, p := range products {
		var mapped, extra []byte
		if p.Mapped != nil {
			if mapped, err = json.Marshal(p.Mapped); err != nil {
				return fmt.Errorf("op=catalog.replace: row %d: %w", i, err)
			}
		}
		if len(p.Extra) > 0 {
			if extra, err = json.Marshal(p.Extra); err != nil {
				return fmt.Errorf("op=catalog.replace: row %d: %w", i, err)
			}
		}
		rows = append(rows, []any{p.Brand, p.Model, p.Description, p.Price, p.RawPrice, mapped, extra})
	}
	cols := []string{"brand", "model", "description", "price", "raw_price", "mapped_dictionary", "extra"}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{r.Table}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("op=catalog.replace: copy: %w", err)
	}
	if int(n) != len(products) {
		err = fmt.Errorf("op=catalog.replace: %w: copied %d of %d rows", domain.ErrInternal, n, len(products))
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=catalog.replace: commit: %w", err)
	}
	return nil
}
