// Package metrics exposes pipeline counters through Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meanrev"

// Recorder holds the pipeline's Prometheus collectors on its own
// registry, so several pipelines (or tests) never collide.
type Recorder struct {
	reg *prometheus.Registry

	bars      *prometheus.CounterVec
	inputErr  *prometheus.CounterVec
	signals   *prometheus.CounterVec
	decisions *prometheus.CounterVec
	trades    *prometheus.CounterVec
	pnl       *prometheus.CounterVec
	rMultiple prometheus.Histogram
	equity    prometheus.Gauge
	open      prometheus.Gauge
	regime    *prometheus.GaugeVec
}

// New creates a Recorder. Labels are attached to every series.
func New(labels prometheus.Labels) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		bars: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bars_total", ConstLabels: labels,
			Help: "Closed bars by interval.",
		}, []string{"interval"}),
		inputErr: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "input_errors_total", ConstLabels: labels,
			Help: "Rejected input ticks by kind.",
		}, []string{"kind"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", ConstLabels: labels,
			Help: "Raw signals by strategy and whether they cleared the confidence floor.",
		}, []string{"strategy", "actionable"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_decisions_total", ConstLabels: labels,
			Help: "Risk gate decisions by reason.",
		}, []string{"reason"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total", ConstLabels: labels,
			Help: "Closed trades by strategy and exit reason.",
		}, []string{"strategy", "reason"}),
		pnl: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "realized_pnl_dollars_total", ConstLabels: labels,
			Help: "Realized gains and losses after costs, by sign.",
		}, []string{"side"}),
		rMultiple: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "trade_r_multiple", ConstLabels: labels,
			Help:    "R multiple of closed trades.",
			Buckets: []float64{-2, -1, -0.5, 0, 0.5, 1, 1.5, 2, 3},
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity_dollars", ConstLabels: labels,
			Help: "Marked-to-market account equity.",
		}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", ConstLabels: labels,
			Help: "Active positions including pending orders.",
		}),
		regime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "regime", ConstLabels: labels,
			Help: "1 for the current regime label, 0 otherwise.",
		}, []string{"label"}),
	}
}

// Registry returns the registry to serve.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Bar(interval string) {
	r.bars.WithLabelValues(interval).Inc()
}

func (r *Recorder) InputError(kind string) {
	r.inputErr.WithLabelValues(kind).Inc()
}

func (r *Recorder) Signal(strategy string, actionable bool) {
	v := "false"
	if actionable {
		v = "true"
	}
	r.signals.WithLabelValues(strategy, v).Inc()
}

func (r *Recorder) Decision(reason string) {
	r.decisions.WithLabelValues(reason).Inc()
}

// Trade records one closed trade. Losses are added as positive dollars
// under side="loss".
func (r *Recorder) Trade(strategy, reason string, pnl, rMultiple float64) {
	r.trades.WithLabelValues(strategy, reason).Inc()
	if pnl >= 0 {
		r.pnl.WithLabelValues("gain").Add(pnl)
	} else {
		r.pnl.WithLabelValues("loss").Add(-pnl)
	}
	r.rMultiple.Observe(rMultiple)
}

func (r *Recorder) Equity(v float64) { r.equity.Set(v) }

func (r *Recorder) OpenPositions(n int) { r.open.Set(float64(n)) }

// Regime marks current as the active label among all.
func (r *Recorder) Regime(current string, all []string) {
	for _, l := range all {
		v := 0.0
		if l == current {
			v = 1
		}
		r.regime.WithLabelValues(l).Set(v)
	}
}
