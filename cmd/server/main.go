package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"epicmint/internal/config"
	"epicmint/internal/controller"
	"epicmint/internal/idempotency"
	"epicmint/internal/nft"
	"epicmint/internal/notify"
	"epicmint/internal/server"
	"epicmint/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	store, closeStore, err := idempotency.Open(ctx, idempotency.Options{
		Kind:        cfg.Service.IdempotencyStore,
		Path:        cfg.Service.IdempotencyStorePath,
		PostgresDSN: cfg.Service.PostgresDSN,
	})
	if err != nil {
		log.Fatalf("idempotency store error: %v", err)
	}
	defer closeStore()

	var client nft.Client
	demo := cfg.Chain.RPCURL == ""
	if demo {
		log.Printf("CHAIN_RPC_URL not set, serving an in-memory collection of %d", cfg.Chain.DemoMintMax)
		client = nft.NewFakeClient(cfg.Contract.ChainID.Int64(), cfg.Chain.DemoMintMax)
	} else {
		ethClient, err := nft.NewEthClient(ctx, nft.EthClientConfig{
			RPCURL:              cfg.Chain.RPCURL,
			ContractAddress:     cfg.Contract.Address.Hex(),
			ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		})
		if err != nil {
			log.Fatalf("nft client error: %v", err)
		}
		client = ethClient
	}

	provider, err := openWallet(cfg, client, demo)
	if err != nil {
		log.Fatalf("wallet error: %v", err)
	}

	alerts := notify.NewFeed(cfg.Service.AlertHistory)
	ctrl := controller.New(controller.Config{
		ExpectedChainID: cfg.Contract.ChainID,
		NetworkName:     cfg.Contract.NetworkName,
		AssetBaseURL:    cfg.Contract.AssetBaseURL,
		ExplorerTxURL:   cfg.Contract.ExplorerTxURL,
	}, provider, client, alerts)
	defer ctrl.Close()
	ctrl.Init(ctx)

	deps := server.Deps{
		Controller: ctrl,
		Alerts:     alerts,
		Store:      store,
	}
	if checker, ok := client.(nft.HealthChecker); ok {
		deps.RPC = checker
	}
	apiServer := server.NewServer(cfg, deps)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// openWallet returns nil when no signer is configured, which the controller
// treats as "no wallet installed". Demo mode gets a throwaway key.
func openWallet(cfg *config.AppConfig, chain wallet.ChainIDReader, demo bool) (wallet.Provider, error) {
	switch {
	case cfg.Chain.PrivateKey != "":
		return wallet.NewKeyedProvider(cfg.Chain.PrivateKey, chain)
	case cfg.Chain.KeystoreDir != "":
		return wallet.OpenKeystore(cfg.Chain.KeystoreDir, cfg.Chain.KeystorePassphrase, chain)
	case demo:
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		log.Printf("demo wallet %s", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return wallet.NewKeyedProvider(common.Bytes2Hex(crypto.FromECDSA(key)), chain)
	default:
		return nil, nil
	}
}
