// Package ruleimport loads promotional rules from gzipped JSON-lines dumps.
package ruleimport

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/wire"
)

// DecodeRule parses one JSON object into a rule and fills defaults: a fresh
// ID, active status, per-user limit of one, product level and now as both
// start and creation time.
func DecodeRule(data []byte, now time.Time) (promotion.Rule, error) {
	r := promotion.Rule{
		UsageLimitPerUser: 1,
		Status:            promotion.StatusActive,
		IsActive:          true,
		Level:             promotion.LevelProduct,
	}
	var (
		kind        string
		value       decimal.Decimal
		maxDiscount decimal.NullDecimal
	)

	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			r.ID, err = d.Str()
		case "code":
			r.Code, err = optionalStr(d)
		case "name":
			r.Name, err = d.Str()
		case "kind":
			kind, err = d.Str()
		case "value":
			value, err = wire.Decimal(d)
		case "maxDiscountAmount":
			maxDiscount, err = wire.NullDecimal(d)
		case "minimumOrderAmount":
			r.MinimumOrderAmount, err = wire.Decimal(d)
		case "usageLimit":
			r.UsageLimit, err = wire.NullInt(d)
		case "usageLimitPerUser":
			r.UsageLimitPerUser, err = d.Int()
		case "status":
			var s string
			s, err = d.Str()
			r.Status = promotion.Status(s)
		case "startsAt":
			r.StartsAt, err = wire.Time(d)
		case "endsAt":
			r.EndsAt, err = wire.NullTime(d)
		case "isActive":
			r.IsActive, err = d.Bool()
		case "isGlobal":
			r.IsGlobal, err = d.Bool()
		case "vendorId":
			r.VendorID, err = optionalStr(d)
		case "level":
			var s string
			s, err = d.Str()
			r.Level = promotion.Level(s)
		case "createdAt":
			r.CreatedAt, err = wire.Time(d)
		case "products":
			r.Scope.ProductIDs, err = wire.Strings(d)
		case "categories":
			r.Scope.CategoryIDs, err = wire.Strings(d)
		case "brands":
			r.Scope.BrandIDs, err = wire.Strings(d)
		case "vendors":
			r.Scope.VendorIDs, err = wire.Strings(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return r, errors.Wrap(err, "decode rule")
	}

	r.Benefit, err = promotion.ParseBenefit(kind, value, maxDiscount)
	if err != nil {
		return r, err
	}

	r.Code = strings.TrimSpace(r.Code)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartsAt.IsZero() {
		r.StartsAt = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	return r, validate(r)
}

func validate(r promotion.Rule) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errors.Errorf("rule %s: name required", r.ID)
	case r.UsageLimitPerUser < 1:
		return errors.Errorf("rule %s: usage limit per user must be positive", r.ID)
	case r.UsageLimit != nil && *r.UsageLimit < 0:
		return errors.Errorf("rule %s: negative usage limit", r.ID)
	case r.EndsAt != nil && r.EndsAt.Before(r.StartsAt):
		return errors.Errorf("rule %s: ends before it starts", r.ID)
	}

	switch r.Status {
	case promotion.StatusActive, promotion.StatusInactive, promotion.StatusExpired, promotion.StatusUsedUp:
	default:
		return errors.Errorf("rule %s: unknown status %q", r.ID, r.Status)
	}
	switch r.Level {
	case promotion.LevelProduct, promotion.LevelOrder:
	default:
		return errors.Errorf("rule %s: unknown level %q", r.ID, r.Level)
	}
	return nil
}

func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
