package tabular

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func sampleProducts() []domain.Product {
	mapped := domain.Profile{GPUIntensity: domain.LevelHigh, DisplayQuality: domain.LevelMedium,
		Portability: domain.LevelLow, Multitasking: domain.LevelHigh, ProcessingSpeed: domain.LevelHigh, Budget: 120000}
	return []domain.Product{
		{Brand: "HP", Model: "Omen", Description: "RTX 4060, i7, 16GB", Price: 120000, Mapped: &mapped,
			Extra: map[string]string{"Weight": "2.4kg"}},
		{Brand: "Dell", Model: "Vostro", Description: "i3, 8GB, office use", Price: 35990},
	}
}

func TestCodec_RoundTripAllFormats(t *testing.T) {
	for _, ext := range []string{ExtCSV, ExtXLSX, ExtParquet} {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "catalog"+ext)
			c := New()
			require.NoError(t, c.Write(context.Background(), path, sampleProducts()))

			got, err := c.Read(context.Background(), path)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "HP", got[0].Brand)
			assert.Equal(t, "RTX 4060, i7, 16GB", got[0].Description)
			assert.Equal(t, int64(120000), got[0].Price)
			require.NotNil(t, got[0].Mapped)
			assert.Equal(t, *sampleProducts()[0].Mapped, *got[0].Mapped)
			assert.Equal(t, "2.4kg", got[0].Extra["Weight"])
			assert.Nil(t, got[1].Mapped)
			assert.Equal(t, int64(35990), got[1].Price)
		})
	}
}

func TestCodec_ReadCSV_NormalizesAndParsesLegacyMapping(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "laptops.csv")
	body := "\ufeffBrand,Model,Price,Description,mapped_dictionary\n" +
		`Acer,Swift,"₹55,990",thin and light,"{'GPU intensity': 'low', 'Display quality': 'medium', 'Portability': 'high', 'Multitasking': 'medium', 'Processing speed': 'medium', 'Budget': '55990'}"` + "\n" +
		`Asus,TUF,79990.00,gaming,not a dict` + "\n" +
		",,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	got, err := New().Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(55990), got[0].Price)
	assert.Equal(t, "₹55,990", got[0].RawPrice)
	require.NotNil(t, got[0].Mapped)
	assert.Equal(t, domain.LevelHigh, got[0].Mapped.Portability)
	assert.Equal(t, int64(79990), got[1].Price)
	assert.Nil(t, got[1].Mapped, "unparseable mapping is treated as unmapped")
}

func TestCodec_ReadMissingRequiredColumn(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Brand,Model\nHP,Omen\n"), 0o600))
	_, err := New().Read(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogSchema)
	assert.Contains(t, err.Error(), "Description")
	assert.Contains(t, err.Error(), "Price")
}

func TestCodec_ReadErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := New()

	_, err := c.Read(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = c.Read(context.Background(), filepath.Join(dir, "catalog.txt"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = c.Read(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = c.Read(context.Background(), empty)
	assert.ErrorIs(t, err, domain.ErrCatalogSchema)

	garbage := filepath.Join(dir, "garbage.parquet")
	require.NoError(t, os.WriteFile(garbage, []byte("not parquet"), 0o600))
	_, err = c.Read(context.Background(), garbage)
	assert.ErrorIs(t, err, domain.ErrCatalogSchema)
}

func TestCodec_WriteUnsupported(t *testing.T) {
	t.Parallel()
	err := New().Write(context.Background(), filepath.Join(t.TempDir(), "x.xls"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSupported(t *testing.T) {
	t.Parallel()
	assert.True(t, Supported("a.CSV"))
	assert.True(t, Supported("dir/b.xlsx"))
	assert.True(t, Supported("c.parquet"))
	assert.False(t, Supported("d.xls"))
	assert.False(t, Supported("e"))
}
