// Package controller coordinates the wallet, the collection contract and the
// alerts shown to the user. It owns the only mutable state in the service:
// the connected account, the two mint counters and the minting flag.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"epicmint/internal/contracts"
	"epicmint/internal/nft"
	"epicmint/internal/notify"
	"epicmint/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Notifier receives user-facing alerts.
type Notifier interface {
	Notify(n notify.Notification)
}

type Config struct {
	ExpectedChainID *big.Int
	NetworkName     string
	AssetBaseURL    string
	ExplorerTxURL   string
}

type Controller struct {
	cfg      Config
	wallet   wallet.Provider
	nft      nft.Client
	notifier Notifier

	// ctx outlives individual requests; the event listener runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	currentAccount string
	mintMax        *uint64
	mintedSoFar    *uint64
	isMinting      bool
	sub            event.Subscription
}

// New wires a controller. A nil provider means no wallet is available.
func New(cfg Config, provider wallet.Provider, client nft.Client, notifier Notifier) *Controller {
	if cfg.ExpectedChainID == nil {
		cfg.ExpectedChainID = big.NewInt(contracts.RinkebyChainID)
	}
	if cfg.NetworkName == "" {
		cfg.NetworkName = contracts.RinkebyNetworkName
	}
	if cfg.AssetBaseURL == "" {
		cfg.AssetBaseURL = contracts.DefaultAssetBaseURL
	}
	if cfg.ExplorerTxURL == "" {
		cfg.ExplorerTxURL = contracts.DefaultExplorerTxURL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:      cfg,
		wallet:   provider,
		nft:      client,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Init runs the start-up sequence: silent wallet check, then a stats read.
// Failures are logged and never stop start-up.
func (c *Controller) Init(ctx context.Context) {
	if err := c.CheckIfWalletIsConnected(ctx); err != nil {
		log.Printf("wallet check: %v", err)
	}
	if _, err := c.LoadStats(ctx); err != nil {
		log.Printf("initial stats: %v", err)
	}
}

// Close detaches the event listener. The lifetime context is cancelled first
// so a refresh stuck on the RPC cannot hold up Unsubscribe.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Account:   c.currentAccount,
		IsMinting: c.isMinting,
	}
	if c.mintMax != nil {
		mintMax := *c.mintMax
		v.MintMax = &mintMax
	}
	if c.mintedSoFar != nil {
		minted := *c.mintedSoFar
		v.MintedSoFar = &minted
	}
	return v
}

// CheckIfWalletIsConnected picks up an account the wallet already authorized,
// without prompting.
func (c *Controller) CheckIfWalletIsConnected(ctx context.Context) error {
	if c.wallet == nil {
		log.Printf("make sure you have a wallet configured")
		return ErrNoWalletFound
	}

	// Network mismatch is only a warning.
	_ = c.CheckNetwork(ctx)

	accounts, err := c.wallet.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("%w: list accounts: %w", ErrNetwork, err)
	}
	if len(accounts) == 0 {
		log.Printf("no authorized account found")
		return nil
	}

	account := accounts[0]
	log.Printf("found authorized account %s", account.Hex())
	c.setAccount(account)
	c.subscribeLogged()
	return nil
}

// Connect asks the wallet for its accounts and adopts the first one.
func (c *Controller) Connect(ctx context.Context) (common.Address, error) {
	if c.wallet == nil {
		c.alert(notify.LevelError, "Get a wallet!", "")
		return common.Address{}, ErrNoWalletFound
	}

	accounts, err := c.wallet.RequestAccounts(ctx)
	if err != nil {
		log.Printf("connect wallet: %v", err)
		if wallet.IsRejection(err) || errors.Is(err, wallet.ErrNoAccounts) {
			return common.Address{}, fmt.Errorf("%w: %w", ErrUserRejected, err)
		}
		return common.Address{}, fmt.Errorf("%w: request accounts: %w", ErrNetwork, err)
	}
	if len(accounts) == 0 {
		log.Printf("connect wallet: no accounts returned")
		return common.Address{}, fmt.Errorf("%w: %w", ErrUserRejected, wallet.ErrNoAccounts)
	}

	account := accounts[0]
	log.Printf("connected %s", account.Hex())
	c.setAccount(account)
	c.subscribeLogged()
	return account, nil
}

// CheckNetwork compares the wallet chain with the expected one and raises a
// warning on mismatch. It never blocks the caller.
func (c *Controller) CheckNetwork(ctx context.Context) error {
	if c.wallet == nil {
		return ErrNoWalletFound
	}
	chainID, err := c.wallet.ChainID(ctx)
	if err != nil {
		log.Printf("read chain id: %v", err)
		return fmt.Errorf("%w: chain id: %w", ErrNetwork, err)
	}
	log.Printf("connected to chain %s", chainID)

	if chainID.Cmp(c.cfg.ExpectedChainID) != 0 {
		c.alert(notify.LevelWarning, fmt.Sprintf("You are not connected to the %s!", c.cfg.NetworkName), "")
		return fmt.Errorf("%w: got %s want %s", ErrWrongNetwork, chainID, c.cfg.ExpectedChainID)
	}
	return nil
}

// LoadStats refreshes the mint counters. On failure the previous values stay.
func (c *Controller) LoadStats(ctx context.Context) (nft.Stats, error) {
	stats, err := c.nft.MintStats(ctx)
	if err != nil {
		log.Printf("load mint stats: %v", err)
		return nft.Stats{}, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	c.mu.Lock()
	c.mintMax = &stats.MaxSupply
	c.mintedSoFar = &stats.Minted
	c.mu.Unlock()
	return stats, nil
}

// Mint submits one mint from the connected account and waits for it to be
// mined. isMinting is set for exactly the duration of the call.
func (c *Controller) Mint(ctx context.Context) (*types.Receipt, error) {
	if c.wallet == nil {
		log.Printf("mint: wallet object doesn't exist")
		return nil, ErrNoWalletFound
	}

	c.mu.Lock()
	account := c.currentAccount
	if account == "" {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if c.isMinting {
		c.mu.Unlock()
		return nil, ErrMintInProgress
	}
	c.isMinting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isMinting = false
		c.mu.Unlock()
	}()

	opts, err := c.wallet.Transactor(ctx, common.HexToAddress(account))
	if err != nil {
		log.Printf("mint: %v", err)
		return nil, classifyTxError(err)
	}

	log.Printf("going to pop wallet now to pay gas")
	tx, err := c.nft.Mint(ctx, opts)
	if err != nil {
		log.Printf("mint: %v", err)
		return nil, classifyTxError(err)
	}

	log.Printf("mining %s, please wait", tx.Hash().Hex())
	receipt, err := c.nft.WaitMined(ctx, tx)
	if err != nil {
		log.Printf("mint: %v", err)
		if errors.Is(err, nft.ErrReverted) {
			return receipt, fmt.Errorf("%w: %w", ErrTransactionReverted, err)
		}
		return nil, classifyTxError(err)
	}

	log.Printf("minted, see transaction: %s", contracts.TxURL(c.cfg.ExplorerTxURL, receipt.TxHash))
	return receipt, nil
}

func classifyTxError(err error) error {
	if wallet.IsRejection(err) {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// Subscribe attaches the mint event listener once per session. Later calls
// return the existing subscription.
func (c *Controller) Subscribe() (event.Subscription, error) {
	c.mu.Lock()
	if c.sub != nil {
		sub := c.sub
		c.mu.Unlock()
		return sub, nil
	}
	c.mu.Unlock()

	sink := make(chan nft.MintedEvent, 8)
	upstream, err := c.nft.WatchMinted(c.ctx, sink)
	if err != nil {
		return nil, err
	}

	var sub event.Subscription
	ready := make(chan struct{})
	sub = event.NewSubscription(func(quit <-chan struct{}) error {
		defer upstream.Unsubscribe()
		for {
			select {
			case ev := <-sink:
				c.handleMinted(ev)
			case err := <-upstream.Err():
				if err != nil {
					log.Printf("mint event listener stopped: %v", err)
					<-ready
					c.dropSubscription(sub)
				}
				return err
			case <-quit:
				return nil
			}
		}
	})
	close(ready)

	c.mu.Lock()
	if c.sub != nil {
		existing := c.sub
		c.mu.Unlock()
		sub.Unsubscribe()
		return existing, nil
	}
	c.sub = sub
	c.mu.Unlock()

	log.Printf("setup event listener")
	return sub, nil
}

func (c *Controller) subscribeLogged() {
	if _, err := c.Subscribe(); err != nil {
		log.Printf("setup event listener: %v", err)
	}
}

func (c *Controller) dropSubscription(sub event.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == sub {
		c.sub = nil
	}
}

func (c *Controller) handleMinted(ev nft.MintedEvent) {
	log.Printf("minted token %s for %s", ev.TokenID, ev.Sender.Hex())
	if _, err := c.LoadStats(c.ctx); err != nil {
		log.Printf("refresh after mint: %v", err)
	}

	link := contracts.AssetURL(c.cfg.AssetBaseURL, c.nft.Address(), ev.TokenID)
	c.alert(notify.LevelInfo, fmt.Sprintf(
		"Hey there! We've minted your NFT #%s and sent it to your wallet. It may be blank right now. It can take a max of 10 min to show up on OpenSea. Here's the link: %s",
		ev.TokenID, link), link)
}

func (c *Controller) setAccount(account common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentAccount = account.Hex()
}

func (c *Controller) alert(level notify.Level, msg, link string) {
	if c.notifier == nil {
		log.Printf("alert [%s]: %s", level, msg)
		return
	}
	c.notifier.Notify(notify.Notification{Level: level, Message: msg, Link: link})
}
