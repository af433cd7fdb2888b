package transfer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/grailfinance/tokenbank/internal/domain"
)

// MemoryMover keeps an in-process book of holdings per (asset, holder). It
// backs simulation mode and tests, standing in for real token contracts.
type MemoryMover struct {
	mu    sync.RWMutex
	vault common.Address
	book  map[common.Address]map[common.Address]*big.Int
}

func NewMemoryMover(vault common.Address) *MemoryMover {
	return &MemoryMover{
		vault: vault,
		book:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Fund seeds a holder's book balance for an asset.
func (m *MemoryMover) Fund(asset, holder common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(asset, holder, amount)
}

// Holdings returns how much of an asset a holder currently has in the book.
func (m *MemoryMover) Holdings(asset, holder common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	holders, ok := m.book[asset]
	if !ok {
		return new(big.Int)
	}
	bal, ok := holders[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// VaultHoldings returns the vault's own holdings of an asset.
func (m *MemoryMover) VaultHoldings(asset common.Address) *big.Int {
	return m.Holdings(asset, m.vault)
}

func (m *MemoryMover) TransferIn(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if domain.IsNative(asset) {
		// native value arrives with the call itself
		m.mu.Lock()
		m.credit(asset, m.vault, amount)
		m.mu.Unlock()
		return nil
	}
	return m.move(asset, from, m.vault, amount)
}

func (m *MemoryMover) TransferOut(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	return m.move(asset, m.vault, to, amount)
}

func (m *MemoryMover) move(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("move amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	holders, ok := m.book[asset]
	if !ok {
		return errors.Errorf("no holdings for asset %s", asset.Hex())
	}
	bal, ok := holders[from]
	if !ok || bal.Cmp(amount) < 0 {
		return errors.Errorf("holder %s cannot cover %s of asset %s", from.Hex(), amount, asset.Hex())
	}
	bal.Sub(bal, amount)
	m.credit(asset, to, amount)
	return nil
}

func (m *MemoryMover) credit(asset, holder common.Address, amount *big.Int) {
	holders, ok := m.book[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		m.book[asset] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = new(big.Int)
		holders[holder] = bal
	}
	bal.Add(bal, amount)
}
