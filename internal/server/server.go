package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"epicmint/internal/config"
	"epicmint/internal/contracts"
	"epicmint/internal/controller"
	"epicmint/internal/hmacauth"
	"epicmint/internal/idempotency"
	"epicmint/internal/nft"
	"epicmint/internal/notify"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// Controller is the subset of *controller.Controller the HTTP layer drives.
type Controller interface {
	View() controller.View
	Connect(ctx context.Context) (common.Address, error)
	LoadStats(ctx context.Context) (nft.Stats, error)
	Mint(ctx context.Context) (*types.Receipt, error)
}

// AlertFeed lists recent user-facing alerts.
type AlertFeed interface {
	Recent() []notify.Notification
}

type Deps struct {
	Controller Controller
	Alerts     AlertFeed
	Store      idempotency.Store
	// RPC is optional; when set /api/v1/health pings it.
	RPC nft.HealthChecker
}

type Server struct {
	cfg         *config.AppConfig
	ctrl        Controller
	alerts      AlertFeed
	store       idempotency.Store
	hmac        *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *metricsRegistry
	page        *template.Template
	background  sync.WaitGroup
	formsOn     bool
	inflightMu  sync.Mutex
	inflight    map[string]struct{}
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	metrics := newMetricsRegistry()

	s := &Server{
		cfg:    cfg,
		ctrl:   deps.Controller,
		alerts: deps.Alerts,
		store:  deps.Store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics:  metrics,
		page:     template.Must(template.New("page").Parse(pageTemplate)),
		formsOn:  cfg.Service.HMACSecret == "",
		inflight: make(map[string]struct{}),
	}

	if checker, ok := deps.Store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if deps.RPC != nil {
		s.rpcHealthFn = deps.RPC.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	// A browser form cannot sign requests, so the page actions only exist
	// when the API is unsigned.
	if s.formsOn {
		mux.Handle("POST /connect", requireSameOrigin(http.HandlerFunc(s.handleConnectForm)))
		mux.Handle("POST /mint", requireSameOrigin(http.HandlerFunc(s.handleMintForm)))
	}
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("POST /api/v1/connect", s.handleConnect)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.Handle("POST /api/v1/mint", s.hmac.Middleware(http.HandlerFunc(s.handleMint)))
	mux.HandleFunc("GET /api/v1/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /api/v1/metrics", metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	log.Printf("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for background mints.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

type pageData struct {
	View          controller.View
	CollectionURL string
	TwitterHandle string
	TwitterURL    string
	FormsEnabled  bool
	Alerts        []notify.Notification
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		View:          s.ctrl.View(),
		CollectionURL: s.cfg.Contract.CollectionURL,
		TwitterHandle: contracts.TwitterHandle,
		TwitterURL:    contracts.TwitterURL,
		FormsEnabled:  s.formsOn,
	}
	if s.alerts != nil {
		data.Alerts = s.alerts.Recent()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		log.Printf("render page: %v", err)
	}
}

func (s *Server) handleConnectForm(w http.ResponseWriter, r *http.Request) {
	_, err := s.ctrl.Connect(r.Context())
	s.metrics.incConnect(statusLabel(err))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleMintForm starts the mint and returns immediately so the page can
// show the busy state while the transaction is outstanding.
func (s *Server) handleMintForm(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_, err := s.ctrl.Mint(ctx)
		_, label := mintErrorStatus(err)
		s.metrics.incMint(label)
		s.observeView()
	}()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse(s.ctrl.View()))
}

type viewResponse struct {
	controller.View
	StatsLine string `json:"statsLine,omitempty"`
}

func stateResponse(v controller.View) viewResponse {
	return viewResponse{View: v, StatsLine: v.StatsLine()}
}

type connectResponse struct {
	Account string `json:"account"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	account, err := s.ctrl.Connect(r.Context())
	s.metrics.incConnect(statusLabel(err))
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, controller.ErrNoWalletFound):
			status = http.StatusNotFound
		case errors.Is(err, controller.ErrUserRejected):
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorResponse{Status: "failed", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Account: account.Hex()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ctrl.LoadStats(r.Context())
	s.metrics.incStatsRead(statusLabel(err))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Status: "failed", Error: err.Error()})
		return
	}
	s.metrics.setSupply(stats)
	writeJSON(w, http.StatusOK, stats)
}

type mintResponse struct {
	Status      string `json:"status"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	ExplorerURL string `json:"explorerUrl"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if !s.reserve(key) {
		writeJSON(w, http.StatusConflict, errorResponse{Status: "busy", Error: "a request with this idempotency key is in progress"})
		return
	}
	defer s.release(key)

	if existing, _ := s.store.Get(ctx, key); existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Response)
		s.metrics.incMint("cached")
		return
	}

	receipt, err := s.ctrl.Mint(ctx)
	status, label := mintErrorStatus(err)
	s.metrics.incMint(label)
	s.observeView()
	if err != nil {
		writeJSON(w, status, errorResponse{Status: label, Error: err.Error()})
		return
	}

	resp := mintResponse{
		Status:      "minted",
		TxHash:      receipt.TxHash.Hex(),
		ExplorerURL: contracts.TxURL(s.cfg.Contract.ExplorerTxURL, receipt.TxHash),
	}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	body, _ := json.Marshal(resp)

	now := time.Now()
	record := idempotency.Record{
		StatusCode: http.StatusOK,
		Response:   body,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Service.IdempotencyWindow),
	}
	if err := s.store.Save(ctx, key, record); err != nil {
		log.Printf("idempotency save %s: %v", key, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// reserve claims key until release. It is held until the response is stored
// so a retry cannot slip in between the mint finishing and the save.
func (s *Server) reserve(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Server) release(key string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}

func mintErrorStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, "minted"
	case errors.Is(err, controller.ErrNoWalletFound):
		return http.StatusNotFound, "no_wallet"
	case errors.Is(err, controller.ErrNotConnected):
		return http.StatusPreconditionFailed, "not_connected"
	case errors.Is(err, controller.ErrMintInProgress):
		return http.StatusConflict, "busy"
	case errors.Is(err, controller.ErrUserRejected):
		return http.StatusForbidden, "rejected"
	case errors.Is(err, controller.ErrTransactionReverted):
		return http.StatusUnprocessableEntity, "reverted"
	default:
		return http.StatusBadGateway, "failed"
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func (s *Server) observeView() {
	v := s.ctrl.View()
	if v.MintMax != nil && v.MintedSoFar != nil {
		s.metrics.setSupply(nft.Stats{MaxSupply: *v.MintMax, Minted: *v.MintedSoFar})
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items := []notify.Notification{}
	if s.alerts != nil {
		items = s.alerts.Recent()
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, struct {
		Status    string      `json:"status"`
		RPC       interface{} `json:"rpc"`
		Store     interface{} `json:"idempotency_store"`
		IsMinting bool        `json:"is_minting"`
	}{
		Status:    status,
		RPC:       rpcInfo,
		Store:     storeInfo,
		IsMinting: s.ctrl.View().IsMinting,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
