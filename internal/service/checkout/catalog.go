package checkout

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/models"
	"github.com/nkiryanov/checkout/internal/service/validate"
)

// Catalog of products for sale. Read only after creation.
type Catalog struct {
	products []models.Product
	byID     map[string]models.Product
}

// NewCatalog validates products and fails on the first invalid or duplicated one
func NewCatalog(products ...models.Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", apperrors.ErrProductInvalid)
	}

	v := validate.New()
	byID := make(map[string]models.Product, len(products))

	for _, p := range products {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrProductInvalid, p.ID, err)
		}
		if _, ok := byID[p.ID]; ok {
			return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrProductInvalid, p.ID, errors.New("duplicated id"))
		}
		byID[p.ID] = p
	}

	return &Catalog{
		products: slices.Clone(products),
		byID:     byID,
	}, nil
}

func (c *Catalog) Products() []models.Product {
	return slices.Clone(c.products)
}

func (c *Catalog) Product(id string) (models.Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return p, apperrors.ErrProductNotFound
	}
	return p, nil
}
