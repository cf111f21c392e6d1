package server

import (
	"net/http"

	"epicmint/internal/nft"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry        *prometheus.Registry
	mintsTotal      *prometheus.CounterVec
	connectsTotal   *prometheus.CounterVec
	statsReadsTotal *prometheus.CounterVec
	mintedSupply    prometheus.Gauge
	mintMax         prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	mints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicmint_mints_total",
		Help: "Total number of mint requests by outcome",
	}, []string{"status"})

	connects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicmint_wallet_connects_total",
		Help: "Wallet connection attempts",
	}, []string{"status"})

	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicmint_stats_reads_total",
		Help: "Mint counter reads against the contract",
	}, []string{"status"})

	minted := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "epicmint_minted_supply",
		Help: "Tokens minted so far, as last read",
	})

	mintMax := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "epicmint_mint_max",
		Help: "Collection mint cap, as last read",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(mints, connects, reads, minted, mintMax)

	return &metricsRegistry{
		registry:        r,
		mintsTotal:      mints,
		connectsTotal:   connects,
		statsReadsTotal: reads,
		mintedSupply:    minted,
		mintMax:         mintMax,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incMint(status string) {
	m.mintsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incConnect(status string) {
	m.connectsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incStatsRead(status string) {
	m.statsReadsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) setSupply(stats nft.Stats) {
	m.mintedSupply.Set(float64(stats.Minted))
	m.mintMax.Set(float64(stats.MaxSupply))
}
