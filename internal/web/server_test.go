package web

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/grailfinance/tokenbank/internal/services/vault"
)

type fakeVault struct {
	paused  bool
	total   *big.Int
	balance *big.Int
}

func (f *fakeVault) Paused() bool { return f.paused }

func (f *fakeVault) TotalValue() *big.Int { return f.total }

func (f *fakeVault) Limits() vault.Limits {
	return vault.Limits{
		CapacityCeiling:      big.NewInt(100_000_000_000),
		PerWithdrawalCeiling: big.NewInt(5),
	}
}
func (f *fakeVault) BalanceOf(_, _ common.Address) *big.Int { return f.balance }

func TestHandleStatus(t *testing.T) {
	s := NewServer("", &fakeVault{paused: true, total: big.NewInt(12_345_678_900)}, nil, nil)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Paused)
	require.Equal(t, "12345678900", resp.TotalValue)
	require.Equal(t, "123.456789", resp.TotalValueDisplay)
	require.Equal(t, "100000000000", resp.CapacityCeiling)
}

func TestHandleBalance(t *testing.T) {
	s := NewServer("", &fakeVault{balance: big.NewInt(42)}, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/balance?asset=0x5000000000000000000000000000000000000005&depositor=0x3000000000000000000000000000000000000003", nil)
	s.handleBalance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "42", resp.Balance)
	require.Equal(t, common.HexToAddress("0x5000000000000000000000000000000000000005").Hex(), resp.Asset)
}

func TestHandleBalanceDefaultsToNativeAsset(t *testing.T) {
	s := NewServer("", &fakeVault{balance: big.NewInt(1)}, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/balance?depositor=0x3000000000000000000000000000000000000003", nil)
	s.handleBalance(rec, req)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, common.Address{}.Hex(), resp.Asset)
}

func TestHandleBalanceRejectsBadAddresses(t *testing.T) {
	s := NewServer("", &fakeVault{balance: big.NewInt(1)}, nil, nil)

	rec := httptest.NewRecorder()
	s.handleBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance?depositor=nope", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
