// Package catalog maps purchasable product ids to deliverable e-book files.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Product is one catalog entry: a platform product id and the file it
// entitles the buyer to.
type Product struct {
	ProductID int64  `yaml:"product_id"`
	Title     string `yaml:"title"`
	FileName  string `yaml:"file_name"`
}

// Catalog is the full product-to-file mapping, loaded once at startup.
type Catalog struct {
	Products []Product `yaml:"products"`

	byID map[int64]*Product
}

// Load reads and parses the catalog file. A missing file yields an empty
// catalog rather than an error: a store with no deliverable products is a
// valid (if useless) configuration.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i := range c.Products {
		p := &c.Products[i]
		if p.ProductID == 0 {
			return nil, fmt.Errorf("catalog: products[%d] has no product_id", i)
		}
		if p.FileName == "" {
			return nil, fmt.Errorf("catalog: products[%d] (%d) has no file_name", i, p.ProductID)
		}
	}

	c.index()
	return &c, nil
}

// New builds a catalog from a product list. Used by tests.
func New(products []Product) *Catalog {
	c := &Catalog{Products: products}
	c.index()
	return c
}

func (c *Catalog) index() {
	c.byID = make(map[int64]*Product, len(c.Products))
	for i := range c.Products {
		c.byID[c.Products[i].ProductID] = &c.Products[i]
	}
}

// FindByProductID returns the catalog entry for a product id, or nil if the
// product has no deliverable file.
func (c *Catalog) FindByProductID(productID int64) *Product {
	return c.byID[productID]
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.Products)
}
