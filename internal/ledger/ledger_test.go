package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/grailfinance/tokenbank/internal/domain"
)

var (
	asset     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	depositor = common.HexToAddress("0x2222222222222222222222222222222222222222")
	other     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestRecordDepositAndBalance(t *testing.T) {
	l := New()

	require.Equal(t, int64(0), l.BalanceOf(asset, depositor).Int64(), "unseen keys default to zero")

	err := l.RecordDeposit(asset, depositor, big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)

	require.Equal(t, int64(100), l.BalanceOf(asset, depositor).Int64())
	require.Equal(t, int64(200), l.AggregateValue().Int64())
	require.Equal(t, int64(0), l.BalanceOf(asset, other).Int64(), "other depositors unaffected")
}

func TestRecordWithdrawal(t *testing.T) {
	l := New()
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(100), big.NewInt(200)))

	require.NoError(t, l.RecordWithdrawal(asset, depositor, big.NewInt(40), big.NewInt(80)))
	require.Equal(t, int64(60), l.BalanceOf(asset, depositor).Int64())
	require.Equal(t, int64(120), l.AggregateValue().Int64())
}

func TestRecordWithdrawalInsufficientBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(50), big.NewInt(50)))

	err := l.RecordWithdrawal(asset, depositor, big.NewInt(51), big.NewInt(51))

	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(50), insufficient.Available.Int64())
	require.Equal(t, int64(51), insufficient.Requested.Int64())

	require.Equal(t, int64(50), l.BalanceOf(asset, depositor).Int64(), "nothing applied on failure")
	require.Equal(t, int64(50), l.AggregateValue().Int64())
}

func TestRecordWithdrawalAggregateUnderflow(t *testing.T) {
	l := New()
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(100), big.NewInt(10)))

	// a price jump between deposit and withdrawal can produce a delta
	// above the running total; the operation must fail, never wrap
	err := l.RecordWithdrawal(asset, depositor, big.NewInt(100), big.NewInt(11))
	require.Error(t, err)

	require.Equal(t, int64(100), l.BalanceOf(asset, depositor).Int64())
	require.Equal(t, int64(10), l.AggregateValue().Int64())
}

func TestRecordDepositRejectsZeroAndNil(t *testing.T) {
	l := New()

	require.ErrorIs(t, l.RecordDeposit(asset, depositor, big.NewInt(0), big.NewInt(1)), domain.ErrZeroAmount)
	require.ErrorIs(t, l.RecordDeposit(asset, depositor, nil, big.NewInt(1)), domain.ErrZeroAmount)
	require.Error(t, l.RecordDeposit(asset, depositor, big.NewInt(1), big.NewInt(-1)))
}

func TestZeroBalanceEntryPersists(t *testing.T) {
	l := New()
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(10), big.NewInt(10)))
	require.NoError(t, l.RecordWithdrawal(asset, depositor, big.NewInt(10), big.NewInt(10)))

	require.Equal(t, int64(0), l.BalanceOf(asset, depositor).Int64())
	require.Equal(t, int64(0), l.AggregateValue().Int64())

	// the key still accepts further deposits
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(5), big.NewInt(5)))
	require.Equal(t, int64(5), l.BalanceOf(asset, depositor).Int64())
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := New()
	require.NoError(t, l.RecordDeposit(asset, depositor, big.NewInt(10), big.NewInt(10)))

	l.BalanceOf(asset, depositor).SetInt64(9999)
	require.Equal(t, int64(10), l.BalanceOf(asset, depositor).Int64())

	l.AggregateValue().SetInt64(9999)
	require.Equal(t, int64(10), l.AggregateValue().Int64())
}
