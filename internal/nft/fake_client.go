package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"epicmint/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// FakeClient is an in-memory collection used by tests and by the server when
// no RPC endpoint is configured. Every successful WaitMined mints one token
// and emits a MintedEvent to watchers.
type FakeClient struct {
	mu        sync.Mutex
	chainID   *big.Int
	address   common.Address
	maxSupply uint64
	minted    uint64
	nonce     uint64
	senders   map[common.Hash]common.Address

	statsErr error
	mintErr  error
	waitErr  error
	watchErr error

	statsCalls int
	mintCalls  int

	feed event.Feed
}

func NewFakeClient(chainID int64, maxSupply uint64) *FakeClient {
	return &FakeClient{
		chainID:   big.NewInt(chainID),
		address:   contracts.DefaultEpicNFTAddress,
		maxSupply: maxSupply,
		senders:   make(map[common.Hash]common.Address),
	}
}

func (f *FakeClient) SetMinted(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minted = n
}

func (f *FakeClient) SetStatsError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsErr = err
}

func (f *FakeClient) SetMintError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintErr = err
}

func (f *FakeClient) SetWaitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
}

func (f *FakeClient) SetWatchError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchErr = err
}

func (f *FakeClient) StatsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls
}

func (f *FakeClient) MintCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls
}

func (f *FakeClient) Address() common.Address {
	return f.address
}

func (f *FakeClient) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *FakeClient) Ping(context.Context) error {
	return nil
}

func (f *FakeClient) MintStats(context.Context) (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.statsErr != nil {
		return Stats{}, f.statsErr
	}
	return Stats{MaxSupply: f.maxSupply, Minted: f.minted}, nil
}

func (f *FakeClient) Mint(_ context.Context, opts *bind.TransactOpts) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("transactor is required")
	}

	f.mu.Lock()
	f.mintCalls++
	if f.mintErr != nil {
		err := f.mintErr
		f.mu.Unlock()
		return nil, fmt.Errorf("mint tx: %w", err)
	}
	if f.minted >= f.maxSupply {
		f.mu.Unlock()
		return nil, fmt.Errorf("mint tx: execution reverted: all tokens minted")
	}
	f.nonce++
	to := f.address
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    f.nonce,
		To:       &to,
		Gas:      100_000,
		GasPrice: big.NewInt(1),
	})
	f.mu.Unlock()

	if opts.Signer != nil {
		signed, err := opts.Signer(opts.From, tx)
		if err != nil {
			return nil, fmt.Errorf("mint tx: %w", err)
		}
		tx = signed
	}

	f.mu.Lock()
	f.senders[tx.Hash()] = opts.From
	f.mu.Unlock()
	return tx, nil
}

func (f *FakeClient) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	if f.waitErr != nil {
		err := f.waitErr
		f.mu.Unlock()
		if errors.Is(err, ErrReverted) {
			receipt := &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: tx.Hash()}
			return receipt, fmt.Errorf("%w: %s", err, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	tokenID := new(big.Int).SetUint64(f.minted)
	f.minted++
	block := f.minted
	sender := f.senders[tx.Hash()]
	delete(f.senders, tx.Hash())
	f.mu.Unlock()

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(block),
	}
	f.feed.Send(MintedEvent{
		Sender:      sender,
		TokenID:     tokenID,
		TxHash:      tx.Hash(),
		BlockNumber: block,
	})
	return receipt, nil
}

func (f *FakeClient) WatchMinted(_ context.Context, sink chan<- MintedEvent) (event.Subscription, error) {
	f.mu.Lock()
	err := f.watchErr
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", contracts.EventMinted, err)
	}
	return f.feed.Subscribe(sink), nil
}
