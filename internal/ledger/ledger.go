// Package ledger holds the per-asset, per-depositor balance table and the
// running aggregate reference-currency value. All mutations go through
// RecordDeposit and RecordWithdrawal so that balance and aggregate updates are
// always applied together.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/grailfinance/tokenbank/internal/domain"
)

// Ledger is safe for concurrent readers; writers serialize on an internal
// mutex. Balances never go negative and never wrap.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[common.Address]map[common.Address]*big.Int
	aggregate *big.Int
}

func New() *Ledger {
	return &Ledger{
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		aggregate: new(big.Int),
	}
}

// RecordDeposit increases the depositor's balance for the asset by amount and
// the aggregate value by valuationDelta. Both updates apply together or not
// at all.
func (l *Ledger) RecordDeposit(asset, depositor common.Address, amount, valuationDelta *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.Wrap(domain.ErrZeroAmount, "record deposit")
	}
	if valuationDelta == nil || valuationDelta.Sign() < 0 {
		return errors.New("record deposit: negative valuation delta")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[asset] = holders
	}
	bal, ok := holders[depositor]
	if !ok {
		bal = new(big.Int)
		holders[depositor] = bal
	}
	bal.Add(bal, amount)
	l.aggregate.Add(l.aggregate, valuationDelta)
	return nil
}

// RecordWithdrawal decreases the depositor's balance and the aggregate value
// symmetrically. It fails if the balance cannot cover the amount or if the
// aggregate would go negative; in both cases nothing is applied.
func (l *Ledger) RecordWithdrawal(asset, depositor common.Address, amount, valuationDelta *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.Wrap(domain.ErrZeroAmount, "record withdrawal")
	}
	if valuationDelta == nil || valuationDelta.Sign() < 0 {
		return errors.New("record withdrawal: negative valuation delta")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.lookup(asset, depositor)
	if bal.Cmp(amount) < 0 {
		return &domain.InsufficientBalanceError{
			Available: new(big.Int).Set(bal),
			Requested: new(big.Int).Set(amount),
		}
	}
	if l.aggregate.Cmp(valuationDelta) < 0 {
		return errors.New("record withdrawal: aggregate value underflow")
	}

	bal.Sub(bal, amount)
	l.aggregate.Sub(l.aggregate, valuationDelta)
	return nil
}

// BalanceOf returns the depositor's balance for the asset, zero for keys that
// were never deposited to. The returned value is a copy.
func (l *Ledger) BalanceOf(asset, depositor common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.lookup(asset, depositor))
}

// AggregateValue returns a copy of the running reference-currency total.
func (l *Ledger) AggregateValue() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.aggregate)
}

func (l *Ledger) lookup(asset, depositor common.Address) *big.Int {
	holders, ok := l.balances[asset]
	if !ok {
		return new(big.Int)
	}
	bal, ok := holders[depositor]
	if !ok {
		return new(big.Int)
	}
	return bal
}
