// Package transfer moves asset units between the vault's custody and the
// outside world. The FundMover boundary is the only place control leaves the
// vault during a guarded operation, which is what makes reentrancy possible.
package transfer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FundMover pulls deposits in and pushes withdrawals out. For token assets
// TransferIn requires a prior approval from the holder; for the native asset
// TransferIn is a credit of value that arrived with the call and performs no
// external interaction.
type FundMover interface {
	TransferIn(ctx context.Context, asset, from common.Address, amount *big.Int) error
	TransferOut(ctx context.Context, asset, to common.Address, amount *big.Int) error
}
