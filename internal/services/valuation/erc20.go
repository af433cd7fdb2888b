package valuation

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const erc20MetadataABI = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

// ContractCaller is the read-only slice of an Ethereum client needed for
// metadata lookups. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Metadata reads decimal precision from token contracts.
type ERC20Metadata struct {
	caller ContractCaller
	abi    abi.ABI
}

func NewERC20Metadata(caller ContractCaller) (*ERC20Metadata, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse ERC-20 metadata ABI")
	}
	return &ERC20Metadata{caller: caller, abi: parsed}, nil
}

func (m *ERC20Metadata) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := m.abi.Pack("decimals")
	if err != nil {
		return 0, errors.Wrap(err, "pack decimals")
	}
	out, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "call decimals on %s", token.Hex())
	}
	vals, err := m.abi.Unpack("decimals", out)
	if err != nil {
		return 0, errors.Wrap(err, "unpack decimals")
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, errors.New("unexpected decimals type")
	}
	return dec, nil
}

// StaticMetadata serves fixed decimals per token. Used in simulation mode and
// tests; unknown tokens default to 18.
type StaticMetadata struct {
	decimals map[common.Address]uint8
}

func NewStaticMetadata(decimals map[common.Address]uint8) *StaticMetadata {
	m := make(map[common.Address]uint8, len(decimals))
	for k, v := range decimals {
		m[k] = v
	}
	return &StaticMetadata{decimals: m}
}

func (m *StaticMetadata) Decimals(_ context.Context, token common.Address) (uint8, error) {
	if d, ok := m.decimals[token]; ok {
		return d, nil
	}
	return 18, nil
}
