package controller

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"epicmint/internal/nft"
	"epicmint/internal/notify"
	"epicmint/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type stubProvider struct {
	chainID    int64
	authorized []common.Address
	requested  []common.Address
	requestErr error
	txErr      error
}

func (p *stubProvider) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(p.chainID), nil
}

func (p *stubProvider) Accounts(context.Context) ([]common.Address, error) {
	return p.authorized, nil
}

func (p *stubProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	return p.requested, nil
}

func (p *stubProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if p.txErr != nil {
		return nil, p.txErr
	}
	return &bind.TransactOpts{From: account, Context: ctx}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
	ch    chan notify.Notification
}

func newRecorder() *recordingNotifier {
	return &recordingNotifier{ch: make(chan notify.Notification, 16)}
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
	r.ch <- n
}

func (r *recordingNotifier) waitFor(t *testing.T, level notify.Level) notify.Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-r.ch:
			if n.Level == level {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notification received", level)
		}
	}
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func newTestController(t *testing.T, provider wallet.Provider, client nft.Client) (*Controller, *recordingNotifier) {
	t.Helper()
	rec := newRecorder()
	ctrl := New(Config{}, provider, client, rec)
	t.Cleanup(ctrl.Close)
	return ctrl, rec
}

func TestConnectWithoutWallet(t *testing.T) {
	ctrl, rec := newTestController(t, nil, nft.NewFakeClient(4, 10))

	_, err := ctrl.Connect(context.Background())
	if !errors.Is(err, ErrNoWalletFound) {
		t.Fatalf("expected ErrNoWalletFound got %v", err)
	}
	if ctrl.View().Connected() {
		t.Fatalf("expected no account")
	}
	n := rec.waitFor(t, notify.LevelError)
	if !strings.Contains(n.Message, "Get a wallet") {
		t.Fatalf("unexpected alert %q", n.Message)
	}
}

func TestConnectUsesFirstAccount(t *testing.T) {
	provider := &stubProvider{chainID: 4, requested: []common.Address{alice, bob}}
	ctrl, _ := newTestController(t, provider, nft.NewFakeClient(4, 10))

	got, err := ctrl.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got != alice {
		t.Fatalf("expected %s got %s", alice.Hex(), got.Hex())
	}
	if ctrl.View().Account != alice.Hex() {
		t.Fatalf("expected current account %s got %q", alice.Hex(), ctrl.View().Account)
	}
}

func TestConnectRejected(t *testing.T) {
	provider := &stubProvider{chainID: 4, requestErr: wallet.ErrUserRejected}
	ctrl, _ := newTestController(t, provider, nft.NewFakeClient(4, 10))

	_, err := ctrl.Connect(context.Background())
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected got %v", err)
	}
	if ctrl.View().Connected() {
		t.Fatalf("expected no account after rejection")
	}
}

func TestWrongNetworkOnlyWarns(t *testing.T) {
	provider := &stubProvider{chainID: 1, authorized: []common.Address{bob}}
	fake := nft.NewFakeClient(1, 10)
	fake.SetMinted(2)
	ctrl, rec := newTestController(t, provider, fake)

	if err := ctrl.CheckNetwork(context.Background()); !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork got %v", err)
	}
	warn := rec.waitFor(t, notify.LevelWarning)
	if !strings.Contains(warn.Message, "Rinkeby") {
		t.Fatalf("unexpected warning %q", warn.Message)
	}

	if err := ctrl.CheckIfWalletIsConnected(context.Background()); err != nil {
		t.Fatalf("wallet check should not fail on wrong network: %v", err)
	}
	if ctrl.View().Account != bob.Hex() {
		t.Fatalf("expected account to be picked up despite wrong network")
	}
	if _, err := ctrl.LoadStats(context.Background()); err != nil {
		t.Fatalf("stats should still load: %v", err)
	}
}

func TestCheckIfWalletIsConnectedWithoutAuthorizedAccount(t *testing.T) {
	provider := &stubProvider{chainID: 4}
	ctrl, _ := newTestController(t, provider, nft.NewFakeClient(4, 10))

	if err := ctrl.CheckIfWalletIsConnected(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.View().Connected() {
		t.Fatalf("expected no account")
	}
}

func TestLoadStatsUpdatesView(t *testing.T) {
	fake := nft.NewFakeClient(4, 10)
	fake.SetMinted(3)
	ctrl, _ := newTestController(t, nil, fake)

	if line := ctrl.View().StatsLine(); line != "" {
		t.Fatalf("expected empty stats line before read, got %q", line)
	}
	if _, err := ctrl.LoadStats(context.Background()); err != nil {
		t.Fatalf("load stats: %v", err)
	}
	if line := ctrl.View().StatsLine(); line != "3/10 minted so far" {
		t.Fatalf("unexpected stats line %q", line)
	}
}

func TestLoadStatsFailureKeepsStaleValues(t *testing.T) {
	fake := nft.NewFakeClient(4, 10)
	fake.SetMinted(5)
	ctrl, rec := newTestController(t, nil, fake)
	ctx := context.Background()

	if _, err := ctrl.LoadStats(ctx); err != nil {
		t.Fatalf("load stats: %v", err)
	}
	fake.SetStatsError(errors.New("rpc down"))
	if _, err := ctrl.LoadStats(ctx); !errors.Is(err, ErrReadFailed) {
		t.Fatalf("expected ErrReadFailed got %v", err)
	}
	if line := ctrl.View().StatsLine(); line != "5/10 minted so far" {
		t.Fatalf("expected stale values kept, got %q", line)
	}
	if rec.count() != 0 {
		t.Fatalf("read failures must not alert")
	}
}

type gatedClient struct {
	*nft.FakeClient
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	close(g.entered)
	<-g.release
	return g.FakeClient.WaitMined(ctx, tx)
}

func TestMintingFlagSpansTransaction(t *testing.T) {
	provider := &stubProvider{chainID: 4, requested: []common.Address{alice}}
	gated := &gatedClient{
		FakeClient: nft.NewFakeClient(4, 10),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	ctrl, _ := newTestController(t, provider, gated)
	ctx := context.Background()

	if _, err := ctrl.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ctrl.View().IsMinting {
		t.Fatalf("expected idle before mint")
	}

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Mint(ctx)
		done <- err
	}()

	<-gated.entered
	if !ctrl.View().IsMinting {
		t.Fatalf("expected minting while transaction is outstanding")
	}
	if ctrl.View().MintLabel() != "Minting ..." {
		t.Fatalf("unexpected label %q", ctrl.View().MintLabel())
	}
	if _, err := ctrl.Mint(ctx); !errors.Is(err, ErrMintInProgress) {
		t.Fatalf("expected ErrMintInProgress got %v", err)
	}

	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("mint: %v", err)
	}
	if ctrl.View().IsMinting {
		t.Fatalf("expected minting flag cleared after success")
	}
}

func TestMintFailuresClearFlag(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		setup func(*nft.FakeClient, *stubProvider)
		want  error
	}{
		{"rejected", func(_ *nft.FakeClient, p *stubProvider) { p.txErr = wallet.ErrUserRejected }, ErrUserRejected},
		{"submit", func(f *nft.FakeClient, _ *stubProvider) { f.SetMintError(errors.New("connection refused")) }, ErrNetwork},
		{"reverted", func(f *nft.FakeClient, _ *stubProvider) { f.SetWaitError(nft.ErrReverted) }, ErrTransactionReverted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &stubProvider{chainID: 4, requested: []common.Address{alice}}
			fake := nft.NewFakeClient(4, 10)
			tc.setup(fake, provider)
			ctrl, _ := newTestController(t, provider, fake)

			if _, err := ctrl.Connect(ctx); err != nil {
				t.Fatalf("connect: %v", err)
			}
			if _, err := ctrl.Mint(ctx); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
			if ctrl.View().IsMinting {
				t.Fatalf("expected minting flag cleared after failure")
			}
		})
	}
}

func TestMintRequiresConnection(t *testing.T) {
	provider := &stubProvider{chainID: 4}
	ctrl, _ := newTestController(t, provider, nft.NewFakeClient(4, 10))

	if _, err := ctrl.Mint(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected got %v", err)
	}
}

func TestMintEventRefreshesStatsOnce(t *testing.T) {
	provider := &stubProvider{chainID: 4, requested: []common.Address{alice}}
	fake := nft.NewFakeClient(4, 10)
	fake.SetMinted(3)
	ctrl, rec := newTestController(t, provider, fake)
	ctx := context.Background()

	if _, err := ctrl.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// A second connect must not attach a second listener.
	if _, err := ctrl.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	before := fake.StatsCalls()
	if _, err := ctrl.Mint(ctx); err != nil {
		t.Fatalf("mint: %v", err)
	}

	n := rec.waitFor(t, notify.LevelInfo)
	if !strings.HasSuffix(n.Link, "/0x5991dE28Ec6357a50f7329fd6257D1603C72827b/3") {
		t.Fatalf("unexpected link %q", n.Link)
	}
	if !strings.Contains(n.Message, n.Link) {
		t.Fatalf("expected link in message %q", n.Message)
	}
	if got := fake.StatsCalls() - before; got != 1 {
		t.Fatalf("expected exactly one stats refresh, got %d", got)
	}
	if line := ctrl.View().StatsLine(); line != "4/10 minted so far" {
		t.Fatalf("unexpected stats line %q", line)
	}
}

func TestSubscribeReturnsSameSubscription(t *testing.T) {
	ctrl, _ := newTestController(t, &stubProvider{chainID: 4}, nft.NewFakeClient(4, 10))

	first, err := ctrl.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := ctrl.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if first != second {
		t.Fatalf("expected one subscription per session")
	}
}

func TestSubscribeErrorDoesNotFailConnect(t *testing.T) {
	provider := &stubProvider{chainID: 4, requested: []common.Address{alice}}
	fake := nft.NewFakeClient(4, 10)
	fake.SetWatchError(errors.New("notifications not supported"))
	ctrl, _ := newTestController(t, provider, fake)

	if _, err := ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("connect should succeed without events: %v", err)
	}
	if _, err := ctrl.Subscribe(); err == nil {
		t.Fatalf("expected watch error")
	}
}

// stallingStatsClient hangs stats reads until the caller's context ends once armed.
type stallingStatsClient struct {
	*nft.FakeClient
	armed   atomic.Bool
	once    sync.Once
	entered chan struct{}
}

func (s *stallingStatsClient) MintStats(ctx context.Context) (nft.Stats, error) {
	if !s.armed.Load() {
		return s.FakeClient.MintStats(ctx)
	}
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return nft.Stats{}, ctx.Err()
}

func TestCloseDoesNotWaitOnStalledRefresh(t *testing.T) {
	provider := &stubProvider{chainID: 4, requested: []common.Address{alice}}
	client := &stallingStatsClient{
		FakeClient: nft.NewFakeClient(4, 10),
		entered:    make(chan struct{}),
	}
	ctrl, _ := newTestController(t, provider, client)
	ctx := context.Background()

	if _, err := ctrl.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.armed.Store(true)
	if _, err := ctrl.Mint(ctx); err != nil {
		t.Fatalf("mint: %v", err)
	}

	select {
	case <-client.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("mint event did not trigger a refresh")
	}

	closed := make(chan struct{})
	go func() {
		ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked on the in-flight refresh")
	}
}
