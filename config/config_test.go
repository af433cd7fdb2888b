package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlConfigChainMode(t *testing.T) {
	path := writeConfig(t, `
mode: chain
rpc_url: https://rpc.example.org
chain_id: 1
owner: "0x1000000000000000000000000000000000000001"
vault_address: "0x2000000000000000000000000000000000000002"
signer_key_env: VAULT_SIGNER_KEY
native_feed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
token_feeds:
  - token: "0x5000000000000000000000000000000000000005"
    feed: "0x6000000000000000000000000000000000000006"
capacity_ceiling: "1000.50"
per_withdrawal_ceiling: "100"
listen_addr: ":9000"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, ModeChain, cfg.Mode)
	require.Equal(t, big.NewInt(1), cfg.ChainID)
	require.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000001"), cfg.Owner)

	// 1000.50 reference units at 8 decimals
	require.Equal(t, big.NewInt(100_050_000_000), cfg.CapacityCeiling)
	// 100 whole native units at 18 decimals
	expected := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	require.Equal(t, expected, cfg.PerWithdrawalCeiling)

	feed, ok := cfg.TokenFeeds[common.HexToAddress("0x5000000000000000000000000000000000000005")]
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x6000000000000000000000000000000000000006"), feed)
}

func TestYamlConfigDefaultsToMemoryMode(t *testing.T) {
	path := writeConfig(t, `
owner: "0x1000000000000000000000000000000000000001"
vault_address: "0x2000000000000000000000000000000000000002"
capacity_ceiling: "1000"
per_withdrawal_ceiling: "100"
native_price: "2000"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	require.Equal(t, ModeMemory, cfg.Mode)
	require.Equal(t, "2000", cfg.NativePrice)
}

func TestYamlConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad owner": `
owner: "not an address"
vault_address: "0x2000000000000000000000000000000000000002"
capacity_ceiling: "1000"
per_withdrawal_ceiling: "100"
`,
		"negative ceiling": `
owner: "0x1000000000000000000000000000000000000001"
vault_address: "0x2000000000000000000000000000000000000002"
capacity_ceiling: "-5"
per_withdrawal_ceiling: "100"
`,
		"chain mode without rpc": `
mode: chain
owner: "0x1000000000000000000000000000000000000001"
vault_address: "0x2000000000000000000000000000000000000002"
capacity_ceiling: "1000"
per_withdrawal_ceiling: "100"
`,
		"too many fractional digits": `
owner: "0x1000000000000000000000000000000000000001"
vault_address: "0x2000000000000000000000000000000000000002"
capacity_ceiling: "1000.123456789"
per_withdrawal_ceiling: "100"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := getYaml(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}
