package transfer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/grailfinance/tokenbank/internal/domain"
)

const erc20TransferABI = `[
	{"name":"transfer","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const nativeTransferGas = 21000

// Backend is the slice of an Ethereum client the mover needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ChainMover executes real asset movements: ERC-20 transferFrom/transfer for
// tokens and plain value transactions for the native asset. Every movement is
// mined and its receipt checked before the mover reports success.
type ChainMover struct {
	backend Backend
	key     *ecdsa.PrivateKey
	signer  common.Address
	chainID *big.Int
	abi     abi.ABI
}

// NewChainMover creates a mover signing with key on the given chain. The
// signer address must be the vault's custody account: token pulls land on it
// and pushes spend from it.
func NewChainMover(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) (*ChainMover, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse ERC-20 transfer ABI")
	}
	return &ChainMover{
		backend: backend,
		key:     key,
		signer:  crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		abi:     parsed,
	}, nil
}

// Signer returns the custody account address movements are signed with.
func (m *ChainMover) Signer() common.Address { return m.signer }

func (m *ChainMover) TransferIn(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if domain.IsNative(asset) {
		// native value arrives with the depositor's own transaction
		return nil
	}
	return m.transact(ctx, asset, m.signer, amount, "transferFrom", from, m.signer, amount)
}

func (m *ChainMover) TransferOut(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if domain.IsNative(asset) {
		return m.sendNative(ctx, to, amount)
	}
	return m.transact(ctx, asset, to, amount, "transfer", to, amount)
}

func (m *ChainMover) transact(ctx context.Context, token, to common.Address, amount *big.Int, method string, args ...interface{}) error {
	opts, err := bind.NewKeyedTransactorWithChainID(m.key, m.chainID)
	if err != nil {
		return errors.Wrap(err, "build transactor")
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(token, m.abi, m.backend, m.backend, m.backend)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrapf(err, "submit %s", method)}
	}
	return m.waitMined(ctx, tx, to, amount)
}

func (m *ChainMover) sendNative(ctx context.Context, to common.Address, amount *big.Int) error {
	nonce, err := m.backend.PendingNonceAt(ctx, m.signer)
	if err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrap(err, "pending nonce")}
	}
	gasPrice, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrap(err, "suggest gas price")}
	}

	tx := types.NewTransaction(nonce, to, amount, nativeTransferGas, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(m.chainID), m.key)
	if err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrap(err, "sign transaction")}
	}
	if err := m.backend.SendTransaction(ctx, signed); err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrap(err, "send transaction")}
	}
	return m.waitMined(ctx, signed, to, amount)
}

func (m *ChainMover) waitMined(ctx context.Context, tx *types.Transaction, to common.Address, amount *big.Int) error {
	receipt, err := bind.WaitMined(ctx, m.backend, tx)
	if err != nil {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Wrap(err, "wait mined")}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &domain.TransferFailedError{To: to, Amount: amount, Cause: errors.Errorf("transaction %s reverted", tx.Hash().Hex())}
	}
	return nil
}
