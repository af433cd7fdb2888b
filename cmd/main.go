// Command vaultd runs the custodial value-vault: a balance ledger with
// reference-currency valuation, capacity and per-withdrawal ceilings, and a
// read-only status server.
//
// Usage:
//
//	vaultd --config config.yaml
//	vaultd --mode memory --owner 0x... --vault 0x... (uses CLI arguments)
//
// Chain mode additionally needs the custody signing key in the environment
// variable named by signer_key_env (default VAULT_SIGNER_KEY).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/grailfinance/tokenbank/config"
	"github.com/grailfinance/tokenbank/internal/domain"
	"github.com/grailfinance/tokenbank/internal/events"
	"github.com/grailfinance/tokenbank/internal/ledger"
	"github.com/grailfinance/tokenbank/internal/services/pricer"
	"github.com/grailfinance/tokenbank/internal/services/transfer"
	"github.com/grailfinance/tokenbank/internal/services/valuation"
	"github.com/grailfinance/tokenbank/internal/services/vault"
	"github.com/grailfinance/tokenbank/internal/storage/journal"
	"github.com/grailfinance/tokenbank/internal/web"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	converter, mover, err := buildCollaborators(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build collaborators", zap.Error(err))
	}

	store, err := journal.NewWALStore(cfg.JournalDir)
	if err != nil {
		logger.Fatal("failed to open event journal", zap.Error(err))
	}
	defer store.Close()

	broadcaster := events.NewBroadcaster(256)

	v, err := vault.New(vault.Config{
		Logger:    logger,
		Owner:     cfg.Owner,
		Self:      cfg.VaultAddress,
		Limits:    vault.Limits{CapacityCeiling: cfg.CapacityCeiling, PerWithdrawalCeiling: cfg.PerWithdrawalCeiling},
		Ledger:    ledger.New(),
		Converter: converter,
		Mover:     mover,
		Journal:   store,
		Events:    broadcaster,
	})
	if err != nil {
		logger.Fatal("failed to create vault", zap.Error(err))
	}

	logger.Info("vault is up",
		zap.String("mode", cfg.Mode),
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("capacity_ceiling", cfg.CapacityCeiling.String()),
		zap.String("per_withdrawal_ceiling", cfg.PerWithdrawalCeiling.String()),
		zap.String("listen", cfg.ListenAddr))

	server := web.NewServer(cfg.ListenAddr, v, store, logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal("status server stopped", zap.Error(err))
	}
}

func buildCollaborators(cfg config.Config, logger *zap.Logger) (*valuation.Converter, transfer.FundMover, error) {
	switch cfg.Mode {
	case config.ModeChain:
		return buildChain(cfg)
	default:
		return buildMemory(cfg, logger)
	}
}

func buildChain(cfg config.Config) (*valuation.Converter, transfer.FundMover, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	metadata, err := valuation.NewERC20Metadata(client)
	if err != nil {
		return nil, nil, err
	}
	converter := valuation.NewConverter(metadata)

	nativeSource, err := pricer.NewFeedSource(client, cfg.NativeFeed, domain.NativeAsset)
	if err != nil {
		return nil, nil, err
	}
	if err := converter.SetDefaultSource(nativeSource); err != nil {
		return nil, nil, err
	}
	for token, feed := range cfg.TokenFeeds {
		source, err := pricer.NewFeedSource(client, feed, token)
		if err != nil {
			return nil, nil, err
		}
		if err := converter.SetSource(token, source); err != nil {
			return nil, nil, err
		}
	}

	keyHex := os.Getenv(cfg.SignerKeyEnv)
	if keyHex == "" {
		return nil, nil, errors.Errorf("environment variable %s must be set", cfg.SignerKeyEnv)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, nil, err
	}
	mover, err := transfer.NewChainMover(client, key, cfg.ChainID)
	if err != nil {
		return nil, nil, err
	}
	return converter, mover, nil
}

func buildMemory(cfg config.Config, logger *zap.Logger) (*valuation.Converter, transfer.FundMover, error) {
	converter := valuation.NewConverter(valuation.NewStaticMetadata(nil))

	nativeSource, err := pricer.NewStaticSource(cfg.NativePrice, domain.PriceDecimals)
	if err != nil {
		return nil, nil, err
	}
	if err := converter.SetDefaultSource(nativeSource); err != nil {
		return nil, nil, err
	}

	logger.Info("running in memory mode, transfers are simulated in-process")
	return converter, transfer.NewMemoryMover(cfg.VaultAddress), nil
}
