package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/wire"
)

// ListProducts returns the catalog with the best discount per product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, discounts, err := h.pricing.ListProducts(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p, discounts[p.ID])
		}
		e.ArrEnd()
	})
}

// GetProduct returns one product with its discount.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, d, err := h.pricing.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p, d) })
}

// ResolveDiscounts prices caller-supplied products, for storefronts that
// already hold the catalog data.
func (h *Handler) ResolveDiscounts(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	products, err := decodeProductsRequest(data)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	discounts := h.pricing.ResolveDiscountsForProducts(r.Context(), products)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("discounts", func(e *jx.Encoder) {
				e.ObjStart()
				seen := make(map[string]struct{}, len(products))
				for _, p := range products {
					d, ok := discounts[p.ID]
					if _, dup := seen[p.ID]; dup || !ok {
						continue
					}
					seen[p.ID] = struct{}{}
					e.FieldStart(p.ID)
					encodeDiscount(e, d)
				}
				e.ObjEnd()
			})
		})
	})
}

func decodeProductsRequest(data []byte) ([]catalog.Product, error) {
	var products []catalog.Product
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, errors.Errorf("products[%d]: id is required", i)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("products[%d]: price must not be negative", i)
		}
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (catalog.Product, error) {
	var p catalog.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = wire.Decimal(d)
		case "categoryId":
			p.CategoryID, err = optionalStr(d)
		case "brandId":
			p.BrandID, err = optionalStr(d)
		case "vendorId":
			p.VendorID, err = optionalStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return p, err
}

// optionalStr reads a string, treating null as empty.
func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
