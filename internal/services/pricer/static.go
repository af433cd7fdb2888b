package pricer

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StaticSource serves a fixed price. Used in simulation mode and tests.
type StaticSource struct {
	price *big.Int
}

// NewStaticSource parses a human-readable price such as "2041.37" and scales
// it to the given fractional precision.
func NewStaticSource(price string, decimals int32) (*StaticSource, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid static price %q", price)
	}
	if d.Sign() <= 0 {
		return nil, errors.Errorf("static price must be positive, got %s", price)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, errors.Errorf("static price %q has more than %d fractional digits", price, decimals)
	}
	return &StaticSource{price: scaled.BigInt()}, nil
}

// NewStaticSourceFromInt wraps an already-scaled integer price.
func NewStaticSourceFromInt(price *big.Int) *StaticSource {
	return &StaticSource{price: new(big.Int).Set(price)}
}

func (s *StaticSource) LatestPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.price), nil
}
