package ruleimport

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/wire"
)

// ProductWriter persists catalog products.
type ProductWriter interface {
	Upsert(ctx context.Context, p catalog.Product) error
}

// DecodeProducts parses a JSON array of products.
func DecodeProducts(data []byte) ([]catalog.Product, error) {
	var out []catalog.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p catalog.Product
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
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
			return errors.Wrap(err, string(key))
		})
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		if p.ID == "" || p.Name == "" {
			return errors.Errorf("product %d: id and name are required", len(out))
		}
		if p.Price.IsNegative() {
			return errors.Errorf("product %s: negative price", p.ID)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ImportProducts upserts products in order.
func ImportProducts(ctx context.Context, w ProductWriter, products []catalog.Product) error {
	for _, p := range products {
		if err := w.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	return nil
}
