package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"epicmint/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
)

// Backend is the RPC surface EthClient needs. Both *ethclient.Client and the
// simulated backend client satisfy it.
type Backend interface {
	bind.ContractBackend
	ethereum.TransactionReader
	ethereum.BlockNumberReader
	ethereum.ChainIDReader
}

// EthClient reads from and mints on the MyEpicNFT contract.
type EthClient struct {
	backend      Backend
	contract     *bind.BoundContract
	abi          abi.ABI
	address      common.Address
	pollInterval time.Duration
}

type EthClientConfig struct {
	RPCURL              string
	ContractAddress     string
	ReceiptPollInterval time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return NewEthClientWithBackend(cli, common.HexToAddress(cfg.ContractAddress), cfg.ReceiptPollInterval)
}

// NewEthClientWithBackend binds the collection at address over an existing backend.
func NewEthClientWithBackend(backend Backend, address common.Address, pollInterval time.Duration) (*EthClient, error) {
	parsedABI, err := contracts.ParseEpicNFTABI()
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &EthClient{
		backend:      backend,
		contract:     bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		abi:          parsedABI,
		address:      address,
		pollInterval: pollInterval,
	}, nil
}

func (c *EthClient) Address() common.Address {
	return c.address
}

func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return id, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	return err
}

func (c *EthClient) MintStats(ctx context.Context) (Stats, error) {
	maxSupply, err := c.callUint(ctx, contracts.MethodMintMax)
	if err != nil {
		return Stats{}, err
	}
	minted, err := c.callUint(ctx, contracts.MethodTotalMinted)
	if err != nil {
		return Stats{}, err
	}
	return Stats{MaxSupply: maxSupply, Minted: minted}, nil
}

func (c *EthClient) callUint(ctx context.Context, method string) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return 0, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("call %s: expected 1 output, got %d", method, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return 0, fmt.Errorf("call %s: unexpected output %T", method, out[0])
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("call %s: value %s out of range", method, value)
	}
	return value.Uint64(), nil
}

// Mint submits makeAnEpicNFT signed by opts. It returns once the node accepted
// the transaction; use WaitMined for the receipt.
func (c *EthClient) Mint(ctx context.Context, opts *bind.TransactOpts) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	txOpts := *opts
	txOpts.Context = ctx

	tx, err := c.contract.Transact(&txOpts, contracts.MethodMint)
	if err != nil {
		return nil, fmt.Errorf("mint tx: %w", err)
	}
	return tx, nil
}

func (c *EthClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := WaitForReceipt(ctx, c.backend, tx, c.pollInterval)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// WatchMinted streams NewEpicNFTMinted events into sink until the returned
// subscription is cancelled. The backend must support subscriptions (ws or ipc).
func (c *EthClient) WatchMinted(ctx context.Context, sink chan<- MintedEvent) (event.Subscription, error) {
	logs, sub, err := c.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, contracts.EventMinted)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", contracts.EventMinted, err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				ev, ok, err := c.decodeMinted(lg)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// decodeMinted reports ok=false for logs a reorg removed; those are not new mints.
func (c *EthClient) decodeMinted(lg types.Log) (MintedEvent, bool, error) {
	if lg.Removed {
		return MintedEvent{}, false, nil
	}
	ev, err := c.parseMinted(lg)
	if err != nil {
		return MintedEvent{}, false, err
	}
	return ev, true, nil
}

type mintedLog struct {
	Sender  common.Address
	TokenId *big.Int
}

func (c *EthClient) parseMinted(lg types.Log) (MintedEvent, error) {
	var out mintedLog
	if err := c.contract.UnpackLog(&out, contracts.EventMinted, lg); err != nil {
		return MintedEvent{}, fmt.Errorf("unpack %s: %w", contracts.EventMinted, err)
	}
	return MintedEvent{
		Sender:      out.Sender,
		TokenID:     out.TokenId,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
	}, nil
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, backend ethereum.TransactionReader, tx *types.Transaction, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
