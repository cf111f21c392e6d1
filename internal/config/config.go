package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"epicmint/internal/contracts"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID     int64  `json:"chainId"`
	NetworkName string `json:"networkName"`
	Contracts   struct {
		MyEpicNFT string `json:"MyEpicNFT"`
	} `json:"contracts"`
	Links struct {
		Collection string `json:"collection"`
		Assets     string `json:"assets"`
		ExplorerTx string `json:"explorerTx"`
	} `json:"links"`
}

type ServiceConfig struct {
	HTTPPort             int           `env:"API_HTTP_PORT" envDefault:"3000"`
	HMACSecret           string        `env:"HMAC_SECRET"`
	HMACClockSkew        time.Duration `env:"HMAC_CLOCK_SKEW" envDefault:"60s"`
	IdempotencyWindow    time.Duration `env:"IDEMPOTENCY_WINDOW" envDefault:"10m"`
	IdempotencyStore     string        `env:"IDEMPOTENCY_STORE" envDefault:"file"`
	IdempotencyStorePath string        `env:"IDEMPOTENCY_STORE_PATH"`
	PostgresDSN          string        `env:"POSTGRES_DSN"`
	AlertHistory         int           `env:"ALERT_HISTORY" envDefault:"20"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type ChainConfig struct {
	RPCURL              string        `env:"CHAIN_RPC_URL"`
	ExpectedChainID     int64         `env:"CHAIN_EXPECTED_ID"`
	PrivateKey          string        `env:"CHAIN_PRIVATE_KEY"`
	KeystoreDir         string        `env:"WALLET_KEYSTORE_DIR"`
	KeystorePassphrase  string        `env:"WALLET_PASSPHRASE"`
	ReceiptPollInterval time.Duration `env:"CHAIN_RECEIPT_POLL" envDefault:"2s"`
	DemoMintMax         uint64        `env:"DEMO_MINT_MAX" envDefault:"50"`
}

// ContractConfig is the resolved collection target.
type ContractConfig struct {
	Address       common.Address
	ChainID       *big.Int
	NetworkName   string
	CollectionURL string
	AssetBaseURL  string
	ExplorerTxURL string
}

// AppConfig ties together deployment info, environment and derived values.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Contract   ContractConfig
}

const defaultDeploymentsPath = "deployments.json"

// Load reads the deployment file named by DEPLOYMENTS_PATH (optional) and
// the process environment.
func Load() (*AppConfig, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom is Load with an explicit environment.
func LoadFrom(environ map[string]string) (*AppConfig, error) {
	path := environ["DEPLOYMENTS_PATH"]
	explicit := path != ""
	if !explicit {
		path = defaultDeploymentsPath
	}

	deployCfg, err := loadDeployments(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load deployments: %w", err)
		}
		deployCfg = &DeploymentConfig{}
	}

	var serviceCfg ServiceConfig
	if err := env.ParseWithOptions(&serviceCfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse service env: %w", err)
	}
	if serviceCfg.IdempotencyStorePath == "" {
		serviceCfg.IdempotencyStorePath = filepath.Join(os.TempDir(), "epicmint-idem.json")
	}

	var chainCfg ChainConfig
	if err := env.ParseWithOptions(&chainCfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse chain env: %w", err)
	}

	contractCfg, err := resolveContract(*deployCfg, chainCfg)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Contract:   contractCfg,
	}, nil
}

func resolveContract(deploy DeploymentConfig, chain ChainConfig) (ContractConfig, error) {
	out := ContractConfig{
		Address:       contracts.DefaultEpicNFTAddress,
		ChainID:       big.NewInt(contracts.RinkebyChainID),
		NetworkName:   contracts.RinkebyNetworkName,
		CollectionURL: contracts.DefaultCollectionURL,
		AssetBaseURL:  contracts.DefaultAssetBaseURL,
		ExplorerTxURL: contracts.DefaultExplorerTxURL,
	}

	if addr := deploy.Contracts.MyEpicNFT; addr != "" {
		if !common.IsHexAddress(addr) {
			return ContractConfig{}, fmt.Errorf("invalid MyEpicNFT address %q", addr)
		}
		out.Address = common.HexToAddress(addr)
	}

	switch {
	case chain.ExpectedChainID != 0:
		out.ChainID = big.NewInt(chain.ExpectedChainID)
	case deploy.ChainID != 0:
		out.ChainID = big.NewInt(deploy.ChainID)
	}

	if deploy.NetworkName != "" {
		out.NetworkName = deploy.NetworkName
	} else if out.ChainID.Int64() != contracts.RinkebyChainID {
		out.NetworkName = fmt.Sprintf("chain %s", out.ChainID)
	}
	if deploy.Links.Collection != "" {
		out.CollectionURL = deploy.Links.Collection
	}
	if deploy.Links.Assets != "" {
		out.AssetBaseURL = deploy.Links.Assets
	}
	if deploy.Links.ExplorerTx != "" {
		out.ExplorerTxURL = deploy.Links.ExplorerTx
	}
	return out, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
