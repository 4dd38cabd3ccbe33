package domain

// Catalog column names.
const (
	ColumnBrand       = "Brand"
	ColumnModel       = "Model"
	ColumnPrice       = "Price"
	ColumnDescription = "Description"
	ColumnMapped      = "mapped_dictionary"
)

// RequiredColumns must be present in every ingested catalog file.
var RequiredColumns = []string{ColumnDescription, ColumnPrice}

// Product is one catalog row.
type Product struct {
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	Description string `json:"description"`
	// Price is the normalized numeric price; RawPrice is the original cell.
	Price    int64  `json:"price"`
	RawPrice string `json:"-"`
	// Mapped is nil until the description has been mapped.
	Mapped *Profile `json:"mapped_dictionary,omitempty"`
	// Extra carries any other catalog columns through untouched.
	Extra map[string]string `json:"-"`
}

// ScoredProduct is a product annotated with its match score (0..5).
type ScoredProduct struct {
	Product
	Score int `json:"score"`
}
