package nft

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ErrReverted is returned by WaitMined when the receipt carries a failed status.
var ErrReverted = errors.New("transaction reverted")

// Client abstracts the on-chain collection interaction.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	MintStats(ctx context.Context) (Stats, error)
	Mint(ctx context.Context, opts *bind.TransactOpts) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	WatchMinted(ctx context.Context, sink chan<- MintedEvent) (event.Subscription, error)
	Address() common.Address
}

// HealthChecker is implemented by clients that can ping their RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Stats are the two counters the collection exposes.
type Stats struct {
	MaxSupply uint64 `json:"maxSupply"`
	Minted    uint64 `json:"minted"`
}

// MintedEvent is a decoded NewEpicNFTMinted log.
type MintedEvent struct {
	Sender      common.Address
	TokenID     *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}
