// Package valuation converts asset amounts into reference-currency units
// using per-asset price sources.
package valuation

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/grailfinance/tokenbank/internal/domain"
	"github.com/grailfinance/tokenbank/internal/services/pricer"
)

// TokenMetadata looks up a token's decimal precision. Queried at conversion
// time, never cached, so precision changes on upgradeable tokens are picked up.
type TokenMetadata interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Converter holds the price-source registry and performs conversions.
// A missing source for a token is a valid state: the amount passes through
// 1:1, so unpriced assets contribute face value to the aggregate.
type Converter struct {
	mu       sync.RWMutex
	native   pricer.PriceSource
	sources  map[common.Address]pricer.PriceSource
	metadata TokenMetadata
}

func NewConverter(metadata TokenMetadata) *Converter {
	return &Converter{
		sources:  make(map[common.Address]pricer.PriceSource),
		metadata: metadata,
	}
}

// SetDefaultSource installs the price source for the native asset.
func (c *Converter) SetDefaultSource(source pricer.PriceSource) error {
	if source == nil {
		return errors.Wrap(domain.ErrInvalidOracle, "default price source is nil")
	}
	c.mu.Lock()
	c.native = source
	c.mu.Unlock()
	return nil
}

// SetSource registers or overwrites the price source for a token.
func (c *Converter) SetSource(token common.Address, source pricer.PriceSource) error {
	if domain.IsNative(token) {
		return errors.Wrap(domain.ErrInvalidOracle, "token address is zero")
	}
	if source == nil {
		return errors.Wrap(domain.ErrInvalidOracle, "price source is nil")
	}
	c.mu.Lock()
	c.sources[token] = source
	c.mu.Unlock()
	return nil
}

// NativePrice returns the latest native-asset price. The default source is
// mandatory, so its absence is OracleUnavailable.
func (c *Converter) NativePrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	source := c.native
	c.mu.RUnlock()
	if source == nil {
		return nil, &domain.OracleUnavailableError{Asset: domain.NativeAsset}
	}
	return source.LatestPrice(ctx)
}

// AssetPrice returns the latest price for a token with a registered source.
func (c *Converter) AssetPrice(ctx context.Context, token common.Address) (*big.Int, error) {
	if domain.IsNative(token) {
		return c.NativePrice(ctx)
	}
	c.mu.RLock()
	source, ok := c.sources[token]
	c.mu.RUnlock()
	if !ok {
		return nil, &domain.OracleUnavailableError{Asset: token}
	}
	return source.LatestPrice(ctx)
}

// ToReferenceCurrency values an amount of an asset in reference-currency
// units. Native amounts carry 18 fractional digits and prices 8, so the
// result keeps the price's 8-digit scale: amount*price/1e18. Tokens divide by
// their own decimal precision instead. Tokens without a source pass through
// at face value.
func (c *Converter) ToReferenceCurrency(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("amount must be non-negative")
	}

	if domain.IsNative(asset) {
		price, err := c.NativePrice(ctx)
		if err != nil {
			return nil, err
		}
		return scale(amount, price, domain.NativeDecimals), nil
	}

	c.mu.RLock()
	source, ok := c.sources[asset]
	c.mu.RUnlock()
	if !ok {
		return new(big.Int).Set(amount), nil
	}

	price, err := source.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}
	decimals, err := c.metadata.Decimals(ctx, asset)
	if err != nil {
		return nil, &domain.OracleUnavailableError{Asset: asset, Cause: errors.Wrap(err, "token decimals")}
	}
	return scale(amount, price, int64(decimals)), nil
}

func scale(amount, price *big.Int, decimals int64) *big.Int {
	v := new(big.Int).Mul(amount, price)
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return v.Quo(v, div)
}
