package valuation

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/grailfinance/tokenbank/internal/domain"
	"github.com/grailfinance/tokenbank/internal/services/pricer"
)

var testToken = common.HexToAddress("0x4444444444444444444444444444444444444444")

func newTestConverter(t *testing.T, tokenDecimals uint8) *Converter {
	t.Helper()
	return NewConverter(NewStaticMetadata(map[common.Address]uint8{testToken: tokenDecimals}))
}

func TestNativeConversion(t *testing.T) {
	c := newTestConverter(t, 18)

	// price 200.00000000 (8 decimals)
	source, err := pricer.NewStaticSource("200", domain.PriceDecimals)
	require.NoError(t, err)
	require.NoError(t, c.SetDefaultSource(source))

	// 4 native units = 4e18 base units, value = 4e18 * 200e8 / 1e18 = 800e8
	amount := new(big.Int).Mul(big.NewInt(4), exp10(18))
	value, err := c.ToReferenceCurrency(context.Background(), domain.NativeAsset, amount)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(800), exp10(8)), value)
}

func TestNativeConversionWithoutSourceFails(t *testing.T) {
	c := newTestConverter(t, 18)

	_, err := c.ToReferenceCurrency(context.Background(), domain.NativeAsset, big.NewInt(1))

	var unavailable *domain.OracleUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, domain.NativeAsset, unavailable.Asset)
}

func TestTokenConversionUsesTokenDecimals(t *testing.T) {
	c := newTestConverter(t, 6)

	source, err := pricer.NewStaticSource("1.50", domain.PriceDecimals)
	require.NoError(t, err)
	require.NoError(t, c.SetSource(testToken, source))

	// 10 tokens with 6 decimals = 10e6 units, value = 10e6 * 1.5e8 / 1e6 = 15e8
	value, err := c.ToReferenceCurrency(context.Background(), testToken, big.NewInt(10_000_000))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(15), exp10(8)), value)
}

func TestUnpricedTokenPassesThroughFaceValue(t *testing.T) {
	c := newTestConverter(t, 18)

	value, err := c.ToReferenceCurrency(context.Background(), testToken, big.NewInt(12345))
	require.NoError(t, err)
	require.Equal(t, int64(12345), value.Int64())
}

func TestAssetPriceRequiresRegisteredSource(t *testing.T) {
	c := newTestConverter(t, 18)

	_, err := c.AssetPrice(context.Background(), testToken)

	var unavailable *domain.OracleUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, testToken, unavailable.Asset)
}

func TestSetSourceValidation(t *testing.T) {
	c := newTestConverter(t, 18)

	require.ErrorIs(t, c.SetDefaultSource(nil), domain.ErrInvalidOracle)
	require.ErrorIs(t, c.SetSource(testToken, nil), domain.ErrInvalidOracle)

	source, err := pricer.NewStaticSource("1", domain.PriceDecimals)
	require.NoError(t, err)
	require.ErrorIs(t, c.SetSource(domain.NativeAsset, source), domain.ErrInvalidOracle)
}

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
