package config

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/grailfinance/tokenbank/internal/domain"
)

const (
	ModeChain  = "chain"
	ModeMemory = "memory"
)

// Config is the parsed, validated runtime configuration.
type Config struct {
	Mode                 string
	RPCURL               string
	ChainID              *big.Int
	Owner                common.Address
	VaultAddress         common.Address
	SignerKeyEnv         string
	NativeFeed           common.Address
	TokenFeeds           map[common.Address]common.Address
	CapacityCeiling      *big.Int // reference currency, price-scaled
	PerWithdrawalCeiling *big.Int // asset base units
	NativePrice          string   // memory mode only
	JournalDir           string
	ListenAddr           string
}

// ConfigTmp mirrors the yaml file with raw string fields before validation.
type ConfigTmp struct {
	Mode         string `yaml:"mode"`
	RPCURL       string `yaml:"rpc_url"`
	ChainID      int64  `yaml:"chain_id"`
	Owner        string `yaml:"owner"`
	VaultAddress string `yaml:"vault_address"`
	SignerKeyEnv string `yaml:"signer_key_env"`
	NativeFeed   string `yaml:"native_feed"`
	TokenFeeds   []struct {
		Token string `yaml:"token"`
		Feed  string `yaml:"feed"`
	} `yaml:"token_feeds"`
	CapacityCeiling      string `yaml:"capacity_ceiling"`
	PerWithdrawalCeiling string `yaml:"per_withdrawal_ceiling"`
	NativePrice          string `yaml:"native_price,omitempty"`
	JournalDir           string `yaml:"journal_dir,omitempty"`
	ListenAddr           string `yaml:"listen_addr,omitempty"`
}

// Get loads configuration from the yaml file given with --config, falling
// back to CLI flags when no file is provided.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	mode := flag.String("mode", ModeMemory, "operating mode: chain or memory")
	rpcURL := flag.String("rpc", "", "ethereum rpc url (chain mode)")
	chainID := flag.Int64("chainid", 1, "chain id (chain mode)")
	owner := flag.String("owner", "", "owner address, example: 0xabc...")
	vaultAddr := flag.String("vault", "", "vault custody address")
	signerKeyEnv := flag.String("signerkeyenv", "VAULT_SIGNER_KEY", "env var holding the custody signing key (chain mode)")
	nativeFeed := flag.String("nativefeed", "", "native asset price feed address (chain mode)")
	capacity := flag.String("capacity", "1000000", "capacity ceiling in reference currency units")
	maxWithdraw := flag.String("maxwithdraw", "100", "per-withdrawal ceiling in whole native units")
	nativePrice := flag.String("nativeprice", "2000", "static native price (memory mode)")
	journalDir := flag.String("journaldir", "", "event journal directory")
	listenAddr := flag.String("listen", ":8087", "status server listen address")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	tmp := ConfigTmp{
		Mode:                 *mode,
		RPCURL:               *rpcURL,
		ChainID:              *chainID,
		Owner:                *owner,
		VaultAddress:         *vaultAddr,
		SignerKeyEnv:         *signerKeyEnv,
		NativeFeed:           *nativeFeed,
		CapacityCeiling:      *capacity,
		PerWithdrawalCeiling: *maxWithdraw,
		NativePrice:          *nativePrice,
		JournalDir:           *journalDir,
		ListenAddr:           *listenAddr,
	}
	return parse(tmp)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}
	return parse(tmp)
}

func parse(tmp ConfigTmp) (Config, error) {
	cfg := Config{
		Mode:         tmp.Mode,
		RPCURL:       tmp.RPCURL,
		SignerKeyEnv: tmp.SignerKeyEnv,
		NativePrice:  tmp.NativePrice,
		JournalDir:   tmp.JournalDir,
		ListenAddr:   tmp.ListenAddr,
		TokenFeeds:   make(map[common.Address]common.Address),
	}

	switch tmp.Mode {
	case ModeChain, ModeMemory:
	case "":
		cfg.Mode = ModeMemory
	default:
		return Config{}, fmt.Errorf("incorrect 'mode' param: %s (want chain or memory)", tmp.Mode)
	}

	if !common.IsHexAddress(tmp.Owner) {
		return Config{}, fmt.Errorf("incorrect 'owner' param: %s", tmp.Owner)
	}
	cfg.Owner = common.HexToAddress(tmp.Owner)

	if !common.IsHexAddress(tmp.VaultAddress) {
		return Config{}, fmt.Errorf("incorrect 'vault_address' param: %s", tmp.VaultAddress)
	}
	cfg.VaultAddress = common.HexToAddress(tmp.VaultAddress)

	if cfg.Mode == ModeChain {
		if tmp.RPCURL == "" {
			return Config{}, fmt.Errorf("'rpc_url' is required in chain mode")
		}
		if tmp.ChainID <= 0 {
			return Config{}, fmt.Errorf("incorrect 'chain_id' param: %d", tmp.ChainID)
		}
		cfg.ChainID = big.NewInt(tmp.ChainID)
		if !common.IsHexAddress(tmp.NativeFeed) {
			return Config{}, fmt.Errorf("incorrect 'native_feed' param: %s", tmp.NativeFeed)
		}
		cfg.NativeFeed = common.HexToAddress(tmp.NativeFeed)
	}

	for _, tf := range tmp.TokenFeeds {
		if !common.IsHexAddress(tf.Token) || !common.IsHexAddress(tf.Feed) {
			return Config{}, fmt.Errorf("incorrect 'token_feeds' entry: token=%s feed=%s", tf.Token, tf.Feed)
		}
		cfg.TokenFeeds[common.HexToAddress(tf.Token)] = common.HexToAddress(tf.Feed)
	}

	capacity, err := parseScaled(tmp.CapacityCeiling, domain.PriceDecimals)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'capacity_ceiling' param: %w", err)
	}
	cfg.CapacityCeiling = capacity

	maxWithdraw, err := parseScaled(tmp.PerWithdrawalCeiling, domain.NativeDecimals)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'per_withdrawal_ceiling' param: %w", err)
	}
	cfg.PerWithdrawalCeiling = maxWithdraw

	return cfg, nil
}

// parseScaled turns a human-readable decimal string into an integer scaled by
// the given number of fractional digits.
func parseScaled(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("value must be strictly positive, got %s", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("value %s has more than %d fractional digits", s, decimals)
	}
	return scaled.BigInt(), nil
}
