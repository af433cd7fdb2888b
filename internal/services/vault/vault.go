// Package vault implements the guarded deposit/withdraw engine: pause gate,
// reentrancy gate, capacity and per-withdrawal ceilings, valuation, ledger
// mutation and the external transfer step, in that order.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/grailfinance/tokenbank/internal/domain"
	"github.com/grailfinance/tokenbank/internal/ledger"
	"github.com/grailfinance/tokenbank/internal/services/pricer"
	"github.com/grailfinance/tokenbank/internal/services/transfer"
	"github.com/grailfinance/tokenbank/internal/services/valuation"
)

// Limits are fixed at construction and never change afterwards.
type Limits struct {
	// CapacityCeiling bounds the aggregate reference-currency value the
	// vault may hold, inclusive.
	CapacityCeiling *big.Int
	// PerWithdrawalCeiling bounds the amount movable in one withdrawal
	// call, independent of balances or cumulative flow.
	PerWithdrawalCeiling *big.Int
}

type eventJournal interface {
	Append(event domain.VaultEvent) error
}

type eventPublisher interface {
	Publish(event domain.VaultEvent)
}

// Config carries the vault's collaborators and immutable parameters.
type Config struct {
	Logger    *zap.Logger
	Owner     common.Address
	Self      common.Address
	Limits    Limits
	Ledger    *ledger.Ledger
	Converter *valuation.Converter
	Mover     transfer.FundMover
	Journal   eventJournal   // optional
	Events    eventPublisher // optional
}

// Vault is the orchestrator. All state-changing entry points run inside the
// pause and reentrancy gates; a transfer capability that calls back into the
// vault mid-operation gets ErrReentrancy.
type Vault struct {
	logger    *zap.Logger
	owner     common.Address
	self      common.Address
	limits    Limits
	ledger    *ledger.Ledger
	converter *valuation.Converter
	mover     transfer.FundMover
	journal   eventJournal
	events    eventPublisher

	paused  atomic.Bool
	entered atomic.Bool
}

func New(cfg Config) (*Vault, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Owner == (common.Address{}) {
		return nil, errors.New("owner address is required")
	}
	if cfg.Self == (common.Address{}) {
		return nil, errors.New("vault address is required")
	}
	if cfg.Limits.CapacityCeiling == nil || cfg.Limits.CapacityCeiling.Sign() <= 0 {
		return nil, errors.New("capacity ceiling must be strictly positive")
	}
	if cfg.Limits.PerWithdrawalCeiling == nil || cfg.Limits.PerWithdrawalCeiling.Sign() <= 0 {
		return nil, errors.New("per-withdrawal ceiling must be strictly positive")
	}
	if cfg.Ledger == nil || cfg.Converter == nil || cfg.Mover == nil {
		return nil, errors.New("ledger, converter and fund mover are required")
	}

	return &Vault{
		logger: cfg.Logger,
		owner:  cfg.Owner,
		self:   cfg.Self,
		limits: Limits{
			CapacityCeiling:      new(big.Int).Set(cfg.Limits.CapacityCeiling),
			PerWithdrawalCeiling: new(big.Int).Set(cfg.Limits.PerWithdrawalCeiling),
		},
		ledger:    cfg.Ledger,
		converter: cfg.Converter,
		mover:     cfg.Mover,
		journal:   cfg.Journal,
		events:    cfg.Events,
	}, nil
}

// enterGuard applies the pause gate then takes the reentrancy flag. The
// returned release must run on every exit path.
func (v *Vault) enterGuard() (func(), error) {
	if v.paused.Load() {
		return nil, domain.ErrPaused
	}
	if !v.entered.CompareAndSwap(false, true) {
		return nil, domain.ErrReentrancy
	}
	return func() { v.entered.Store(false) }, nil
}

// DepositNative credits the depositor with native value that arrived with the
// call.
func (v *Vault) DepositNative(ctx context.Context, depositor common.Address, amount *big.Int) error {
	release, err := v.enterGuard()
	if err != nil {
		return err
	}
	defer release()
	return v.deposit(ctx, domain.NativeAsset, depositor, amount)
}

// DepositToken pulls amount units of the token from the depositor, who must
// have approved the vault's custody account beforehand.
func (v *Vault) DepositToken(ctx context.Context, token, depositor common.Address, amount *big.Int) error {
	release, err := v.enterGuard()
	if err != nil {
		return err
	}
	defer release()
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if domain.IsNative(token) {
		return errors.Wrap(domain.ErrInvalidAsset, "token address is the native identifier")
	}
	return v.deposit(ctx, token, depositor, amount)
}

func (v *Vault) deposit(ctx context.Context, asset, depositor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if asset == v.self {
		return errors.Wrap(domain.ErrInvalidAsset, "vault cannot hold itself")
	}

	// tokens are pulled before the ledger is touched: the vault must hold
	// funds it did not push itself; native value arrives with the call
	if err := v.mover.TransferIn(ctx, asset, depositor, amount); err != nil {
		return &domain.TransferFailedError{To: v.self, Amount: amount, Cause: err}
	}

	delta, err := v.converter.ToReferenceCurrency(ctx, asset, amount)
	if err != nil {
		v.refund(ctx, asset, depositor, amount)
		return err
	}

	projected := new(big.Int).Add(v.ledger.AggregateValue(), delta)
	if projected.Cmp(v.limits.CapacityCeiling) > 0 {
		v.refund(ctx, asset, depositor, amount)
		return &domain.BankCapExceededError{
			Ceiling:   new(big.Int).Set(v.limits.CapacityCeiling),
			Attempted: projected,
		}
	}

	if err := v.ledger.RecordDeposit(asset, depositor, amount, delta); err != nil {
		v.refund(ctx, asset, depositor, amount)
		return errors.Wrap(err, "record deposit")
	}

	v.emit(domain.VaultEvent{
		Kind:       domain.EventDeposit,
		Asset:      asset.Hex(),
		Depositor:  depositor.Hex(),
		Amount:     amount.String(),
		NewBalance: v.ledger.BalanceOf(asset, depositor).String(),
	})
	return nil
}

// refund compensates a failed deposit by pushing the already-received amount
// back out of custody.
func (v *Vault) refund(ctx context.Context, asset, depositor common.Address, amount *big.Int) {
	if err := v.mover.TransferOut(ctx, asset, depositor, amount); err != nil {
		v.logger.Error("refund of rejected deposit failed, funds stranded in custody",
			zap.String("asset", asset.Hex()),
			zap.String("depositor", depositor.Hex()),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}
}

// WithdrawNative sends native value back to the depositor.
func (v *Vault) WithdrawNative(ctx context.Context, depositor common.Address, amount *big.Int) error {
	release, err := v.enterGuard()
	if err != nil {
		return err
	}
	defer release()
	return v.withdraw(ctx, domain.NativeAsset, depositor, amount)
}

// WithdrawToken sends token units back to the depositor.
func (v *Vault) WithdrawToken(ctx context.Context, token, depositor common.Address, amount *big.Int) error {
	release, err := v.enterGuard()
	if err != nil {
		return err
	}
	defer release()
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if domain.IsNative(token) {
		return errors.Wrap(domain.ErrInvalidAsset, "token address is the native identifier")
	}
	return v.withdraw(ctx, token, depositor, amount)
}

func (v *Vault) withdraw(ctx context.Context, asset, depositor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if asset == v.self {
		return errors.Wrap(domain.ErrInvalidAsset, "vault cannot hold itself")
	}

	// the per-call ceiling fires before the balance check, so an
	// over-limit request reports the limit even when the balance is also
	// short
	if amount.Cmp(v.limits.PerWithdrawalCeiling) > 0 {
		return &domain.WithdrawLimitExceededError{
			Limit:     new(big.Int).Set(v.limits.PerWithdrawalCeiling),
			Requested: new(big.Int).Set(amount),
		}
	}

	available := v.ledger.BalanceOf(asset, depositor)
	if available.Cmp(amount) < 0 {
		return &domain.InsufficientBalanceError{Available: available, Requested: new(big.Int).Set(amount)}
	}

	// valued at the current price, not the price at deposit time; the
	// aggregate drifts from mark-to-market as prices move
	delta, err := v.converter.ToReferenceCurrency(ctx, asset, amount)
	if err != nil {
		return err
	}

	// checks-effects-interactions: the ledger is decremented before the
	// outbound transfer, so a reentrant call observes post-withdrawal state
	if err := v.ledger.RecordWithdrawal(asset, depositor, amount, delta); err != nil {
		return errors.Wrap(err, "record withdrawal")
	}

	if err := v.mover.TransferOut(ctx, asset, depositor, amount); err != nil {
		if rbErr := v.ledger.RecordDeposit(asset, depositor, amount, delta); rbErr != nil {
			v.logger.Error("ledger rollback after failed transfer did not apply",
				zap.String("asset", asset.Hex()),
				zap.String("depositor", depositor.Hex()),
				zap.String("amount", amount.String()),
				zap.Error(rbErr))
		}
		var tf *domain.TransferFailedError
		if errors.As(err, &tf) {
			return err
		}
		return &domain.TransferFailedError{To: depositor, Amount: amount, Cause: err}
	}

	v.emit(domain.VaultEvent{
		Kind:       domain.EventWithdraw,
		Asset:      asset.Hex(),
		Depositor:  depositor.Hex(),
		Amount:     amount.String(),
		NewBalance: v.ledger.BalanceOf(asset, depositor).String(),
	})
	return nil
}

// BalanceOf is a pure lookup, zero for unseen keys.
func (v *Vault) BalanceOf(asset, depositor common.Address) *big.Int {
	return v.ledger.BalanceOf(asset, depositor)
}

// TotalValue returns the running aggregate reference-currency value.
func (v *Vault) TotalValue() *big.Int {
	return v.ledger.AggregateValue()
}

// LatestNativePrice reads the default price source.
func (v *Vault) LatestNativePrice(ctx context.Context) (*big.Int, error) {
	return v.converter.NativePrice(ctx)
}

// LatestAssetPrice reads a token's registered price source.
func (v *Vault) LatestAssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	return v.converter.AssetPrice(ctx, asset)
}

// Paused reports the pause flag.
func (v *Vault) Paused() bool { return v.paused.Load() }

// Owner returns the admin address.
func (v *Vault) Owner() common.Address { return v.owner }

// Limits returns copies of the immutable ceilings.
func (v *Vault) Limits() Limits {
	return Limits{
		CapacityCeiling:      new(big.Int).Set(v.limits.CapacityCeiling),
		PerWithdrawalCeiling: new(big.Int).Set(v.limits.PerWithdrawalCeiling),
	}
}

// SetDefaultPriceSource installs the mandatory native-asset price source.
func (v *Vault) SetDefaultPriceSource(caller common.Address, source pricer.PriceSource) error {
	if caller != v.owner {
		return domain.ErrNotOwner
	}
	if source == nil {
		return errors.Wrap(domain.ErrInvalidOracle, "source is nil")
	}
	if err := v.converter.SetDefaultSource(source); err != nil {
		return err
	}
	v.emit(domain.VaultEvent{
		Kind:   domain.EventOracleSet,
		Asset:  domain.NativeAsset.Hex(),
		Source: fmt.Sprintf("%T", source),
	})
	return nil
}

// SetPriceSource registers or overwrites a token's price source.
func (v *Vault) SetPriceSource(caller, token common.Address, source pricer.PriceSource) error {
	if caller != v.owner {
		return domain.ErrNotOwner
	}
	if err := v.converter.SetSource(token, source); err != nil {
		return err
	}
	v.emit(domain.VaultEvent{
		Kind:   domain.EventOracleSet,
		Asset:  token.Hex(),
		Source: fmt.Sprintf("%T", source),
	})
	return nil
}

// SetPaused toggles the pause gate. Idempotent.
func (v *Vault) SetPaused(caller common.Address, paused bool) error {
	if caller != v.owner {
		return domain.ErrNotOwner
	}
	v.paused.Store(paused)
	p := paused
	v.emit(domain.VaultEvent{Kind: domain.EventPauseChange, Paused: &p})
	return nil
}

// EmergencyWithdraw moves raw funds to the owner, bypassing the ledger, the
// ceilings and the gates. Balances and the aggregate value are deliberately
// left untouched, so this desynchronizes accounting from actual holdings.
// It exists to recover stuck funds, nothing else.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller, asset common.Address, amount *big.Int) error {
	if caller != v.owner {
		return domain.ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if err := v.mover.TransferOut(ctx, asset, v.owner, amount); err != nil {
		var tf *domain.TransferFailedError
		if errors.As(err, &tf) {
			return err
		}
		return &domain.TransferFailedError{To: v.owner, Amount: amount, Cause: err}
	}
	v.logger.Warn("emergency withdrawal executed, ledger accounting now diverges from holdings",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

func (v *Vault) emit(event domain.VaultEvent) {
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	if v.journal != nil {
		if err := v.journal.Append(event); err != nil {
			v.logger.Warn("failed to journal vault event",
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
		}
	}
	if v.events != nil {
		v.events.Publish(event)
	}
}
