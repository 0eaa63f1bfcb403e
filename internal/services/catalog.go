package services

import (
	"fmt"
	"sort"
)

// Catalog maps payment-provider price ids to the credits they grant.
// It is fixed at startup.
type Catalog struct {
	products map[string]int64
}

func NewCatalog(products map[string]int64) *Catalog {
	c := &Catalog{products: make(map[string]int64, len(products))}
	for id, credits := range products {
		if id != "" && credits > 0 {
			c.products[id] = credits
		}
	}
	return c
}

// Credits returns the grant for productID. Unknown ids never default to
// an amount.
func (c *Catalog) Credits(productID string) (int64, error) {
	credits, ok := c.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
	}
	return credits, nil
}

func (c *Catalog) Has(productID string) bool {
	_, ok := c.products[productID]
	return ok
}

func (c *Catalog) ProductIDs() []string {
	ids := make([]string, 0, len(c.products))
	for id := range c.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
