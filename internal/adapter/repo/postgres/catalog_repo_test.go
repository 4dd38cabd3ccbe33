package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func TestNewCatalogRepo_TableName(t *testing.T) {
	r, err := postgres.NewCatalogRepo(&poolStub{}, "")
	require.NoError(t, err)
	assert.Equal(t, postgres.DefaultCatalogTable, r.Table)

	_, err = postgres.NewCatalogRepo(&poolStub{}, "laptops; DROP TABLE x")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCatalogRepo_Load_MissingTableIsEmpty(t *testing.T) {
	r, err := postgres.NewCatalogRepo(&poolStub{row: boolRow(false)}, "")
	require.NoError(t, err)
	got, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalogRepo_Load_DecodesRows(t *testing.T) {
	pool := &poolStub{
		row: boolRow(true),
		rows: &rowsStub{data: [][]any{
			{"Dell", "Inspiron", "Intel i5, 8GB RAM", int64(55990), "55,990",
				[]byte(`{"GPU intensity":"low","Display quality":"medium","Portability":"high","Multitasking":"medium","Processing speed":"medium","Budget":"55990"}`),
				[]byte(`{"Weight":"1.5kg"}`)},
			{"HP", "Omen", "RTX 4060", int64(120000), "120000", nil, nil},
		}},
	}
	r, err := postgres.NewCatalogRepo(pool, "")
	require.NoError(t, err)
	got, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Mapped)
	assert.Equal(t, domain.LevelHigh, got[0].Mapped.Portability)
	assert.Equal(t, int64(55990), got[0].Mapped.Budget)
	assert.Equal(t, "1.5kg", got[0].Extra["Weight"])
	assert.Nil(t, got[1].Mapped)
	assert.Equal(t, int64(120000), got[1].Price)
}

func TestCatalogRepo_Load_BadMappedJSON(t *testing.T) {
	pool := &poolStub{
		row:  boolRow(true),
		rows: &rowsStub{data: [][]any{{"", "", "d", int64(1), "1", []byte(`{"GPU intensity":"extreme"}`), nil}}},
	}
	r, _ := postgres.NewCatalogRepo(pool, "")
	_, err := r.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrCatalogSchema)
}

func TestCatalogRepo_Replace_CopiesInTransaction(t *testing.T) {
	tx := &txStub{}
	r, _ := postgres.NewCatalogRepo(&poolStub{tx: tx}, "laptops")
	mapped := domain.Profile{GPUIntensity: domain.LevelHigh, DisplayQuality: domain.LevelHigh,
		Portability: domain.LevelLow, Multitasking: domain.LevelHigh, ProcessingSpeed: domain.LevelHigh, Budget: 150000}
	err := r.Replace(context.Background(), []domain.Product{
		{Brand: "ASUS", Description: "ROG", Price: 150000, Mapped: &mapped},
		{Brand: "Acer", Description: "Aspire", Price: 40000},
	})
	require.NoError(t, err)
	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0], `DROP TABLE IF EXISTS "laptops"`)
	assert.Contains(t, tx.execs[1], `CREATE TABLE "laptops"`)
	assert.Equal(t, pgx.Identifier{"laptops"}, tx.copyTable)
	require.Len(t, tx.copied, 2)
	assert.JSONEq(t, `{"GPU intensity":"high","Display quality":"high","Portability":"low","Multitasking":"high","Processing speed":"high","Budget":"150000"}`,
		string(tx.copied[0][5].([]byte)))
	assert.Nil(t, tx.copied[1][5])
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestCatalogRepo_Replace_RollsBackOnFailure(t *testing.T) {
	tx := &txStub{execErrOn: "CREATE TABLE"}
	r, _ := postgres.NewCatalogRepo(&poolStub{tx: tx}, "")
	err := r.Replace(context.Background(), []domain.Product{{Description: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=catalog.replace: create")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}
