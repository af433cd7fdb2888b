package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Sentinel errors for conditions that carry no parameters. Callers match them
// with errors.Is.
var (
	ErrZeroAmount    = errors.New("amount must be greater than zero")
	ErrPaused        = errors.New("vault is paused")
	ErrReentrancy    = errors.New("reentrant call rejected")
	ErrInvalidAsset  = errors.New("invalid asset")
	ErrInvalidOracle = errors.New("invalid oracle")
	ErrNotOwner      = errors.New("caller is not the owner")
)

// BankCapExceededError is returned when a deposit would push the aggregate
// reference-currency value above the capacity ceiling.
type BankCapExceededError struct {
	Ceiling   *big.Int
	Attempted *big.Int
}

func (e *BankCapExceededError) Error() string {
	return fmt.Sprintf("bank capacity exceeded: ceiling %s, attempted total %s", e.Ceiling, e.Attempted)
}

// WithdrawLimitExceededError is returned when a single withdrawal exceeds the
// per-call ceiling, regardless of the depositor's balance.
type WithdrawLimitExceededError struct {
	Limit     *big.Int
	Requested *big.Int
}

func (e *WithdrawLimitExceededError) Error() string {
	return fmt.Sprintf("withdrawal limit exceeded: limit %s, requested %s", e.Limit, e.Requested)
}

// InsufficientBalanceError is returned when a depositor's balance cannot cover
// the requested withdrawal.
type InsufficientBalanceError struct {
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s", e.Available, e.Requested)
}

// TransferFailedError is returned when the external transfer capability
// reports failure moving funds.
type TransferFailedError struct {
	To     common.Address
	Amount *big.Int
	Cause  error
}

func (e *TransferFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transfer of %s to %s failed: %v", e.Amount, e.To.Hex(), e.Cause)
	}
	return fmt.Sprintf("transfer of %s to %s failed", e.Amount, e.To.Hex())
}

func (e *TransferFailedError) Unwrap() error { return e.Cause }

// OracleUnavailableError is returned when a required price source is not
// configured or returns no usable data.
type OracleUnavailableError struct {
	Asset common.Address
	Cause error
}

func (e *OracleUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("price source unavailable for asset %s: %v", e.Asset.Hex(), e.Cause)
	}
	return fmt.Sprintf("price source unavailable for asset %s", e.Asset.Hex())
}

func (e *OracleUnavailableError) Unwrap() error { return e.Cause }
