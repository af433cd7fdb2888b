package pricer

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/grailfinance/tokenbank/internal/domain"
)

const aggregatorABI = `[
	{"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

// ContractCaller is the read-only slice of an Ethereum client the feed needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FeedSource reads prices from a Chainlink-style aggregator contract.
type FeedSource struct {
	caller ContractCaller
	feed   common.Address
	asset  common.Address
	abi    abi.ABI
}

// NewFeedSource creates a price source backed by the aggregator at feed.
// The asset address is only used to annotate errors.
func NewFeedSource(caller ContractCaller, feed, asset common.Address) (*FeedSource, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}
	if feed == (common.Address{}) {
		return nil, errors.Wrap(domain.ErrInvalidOracle, "feed address is zero")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse aggregator ABI")
	}
	return &FeedSource{caller: caller, feed: feed, asset: asset, abi: parsed}, nil
}

// LatestPrice fetches latestRoundData and returns the answer. Non-positive
// answers and rounds that never completed surface as OracleUnavailable.
func (f *FeedSource) LatestPrice(ctx context.Context) (*big.Int, error) {
	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return nil, &domain.OracleUnavailableError{Asset: f.asset, Cause: err}
	}
	vals, err := f.abi.Unpack("latestRoundData", out)
	if err != nil {
		return nil, &domain.OracleUnavailableError{Asset: f.asset, Cause: errors.Wrap(err, "unpack round data")}
	}
	answer, ok := vals[1].(*big.Int)
	if !ok {
		return nil, &domain.OracleUnavailableError{Asset: f.asset, Cause: errors.New("unexpected answer type")}
	}
	updatedAt, _ := vals[3].(*big.Int)
	if answer.Sign() <= 0 || updatedAt == nil || updatedAt.Sign() == 0 {
		return nil, &domain.OracleUnavailableError{Asset: f.asset, Cause: errors.New("round has no usable answer")}
	}
	return answer, nil
}

// Decimals reports the feed's answer precision.
func (f *FeedSource) Decimals(ctx context.Context) (uint8, error) {
	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, &domain.OracleUnavailableError{Asset: f.asset, Cause: err}
	}
	vals, err := f.abi.Unpack("decimals", out)
	if err != nil {
		return 0, &domain.OracleUnavailableError{Asset: f.asset, Cause: errors.Wrap(err, "unpack decimals")}
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, &domain.OracleUnavailableError{Asset: f.asset, Cause: errors.New("unexpected decimals type")}
	}
	return dec, nil
}

func (f *FeedSource) call(ctx context.Context, method string) ([]byte, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.feed, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("%s returned no data", method)
	}
	return out, nil
}
