// Package metrics exposes the engine's Prometheus collectors. Every method
// is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trendbot"

type Metrics struct {
	reg *prometheus.Registry

	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	signals       *prometheus.CounterVec
	entries       *prometheus.CounterVec
	exits         *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	symbolErrors  *prometheus.CounterVec
	realizedPnL   *prometheus.GaugeVec
	openPositions prometheus.Gauge
	dailyLoss     prometheus.Gauge
	circuitState  *prometheus.GaugeVec
	breakoutPhase *prometheus.GaugeVec
	lastClose     *prometheus.GaugeVec
}

// New builds the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Decision loop passes over the watchlist",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one decision loop pass",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Entry signals emitted by the strategy router",
		}, []string{"symbol", "strategy", "action"}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Positions opened",
		}, []string{"symbol", "strategy", "side"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Positions closed by reason",
		}, []string{"symbol", "reason"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_rejected_total",
			Help:      "Entry signals dropped before an order was sent",
		}, []string{"symbol", "reason"}),
		symbolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_errors_total",
			Help:      "Per-symbol failures that skipped the symbol for one tick",
		}, []string{"symbol", "kind"}),
		realizedPnL: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl_usdt",
			Help:      "Net realized PnL since process start",
		}, []string{"symbol"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open positions",
		}),
		dailyLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_loss_usdt",
			Help:      "Realized loss accumulated for the current UTC day",
		}),
		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_circuit_state",
			Help:      "Candle fetch breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"symbol"}),
		breakoutPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breakout_phase",
			Help:      "Breakout machine phase (0=idle, 1=waiting long retest, -1=waiting short retest)",
		}, []string{"symbol"}),
		lastClose: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_close_timestamp_seconds",
			Help:      "Close time of the last applied candle",
		}, []string{"symbol"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSignal(symbol, strategy, action string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(symbol, strategy, action).Inc()
}

func (m *Metrics) RecordEntry(symbol, strategy, side string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(symbol, strategy, side).Inc()
}

func (m *Metrics) RecordExit(symbol, reason string, net float64) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(symbol, reason).Inc()
	m.realizedPnL.WithLabelValues(symbol).Add(net)
}

func (m *Metrics) RecordRejected(symbol, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(symbol, reason).Inc()
}

func (m *Metrics) RecordSymbolError(symbol, kind string) {
	if m == nil {
		return
	}
	m.symbolErrors.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(n))
}

func (m *Metrics) SetDailyLoss(v float64) {
	if m == nil {
		return
	}
	m.dailyLoss.Set(v)
}

func (m *Metrics) SetCircuitState(symbol string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(symbol).Set(float64(state))
}

func (m *Metrics) SetBreakoutPhase(symbol string, phase int) {
	if m == nil {
		return
	}
	m.breakoutPhase.WithLabelValues(symbol).Set(float64(phase))
}

func (m *Metrics) SetLastClose(symbol string, closeTimeMs int64) {
	if m == nil {
		return
	}
	m.lastClose.WithLabelValues(symbol).Set(float64(closeTimeMs) / 1000)
}
