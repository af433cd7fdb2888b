package pricer

import (
	"context"
	"math/big"
)

// PriceSource returns the latest reference-currency price of one asset as an
// integer scaled to the source's fractional precision.
type PriceSource interface {
	LatestPrice(ctx context.Context) (*big.Int, error)
}
