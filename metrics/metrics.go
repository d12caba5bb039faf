// Package metrics exports hashwx manager activity to Prometheus.
package metrics

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/resource"
)

// Collector records manager operations. Pass it as both Config.Recorder
// and one of Config.Observers.
type Collector struct {
	AllocsTotal  *prometheus.CounterVec
	SeedsTotal   *prometheus.CounterVec
	ExecsTotal   *prometheus.CounterVec
	FreesTotal   *prometheus.CounterVec
	LiveContexts prometheus.Gauge
	SeedLatency  *prometheus.HistogramVec
}

var (
	_ hashwx.Recorder   = (*Collector)(nil)
	_ resource.Observer = (*Collector)(nil)
)

// New registers the collector's metrics on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		AllocsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashwx_allocs_total",
				Help: "Context allocations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SeedsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashwx_seeds_total",
				Help: "SetSeed calls by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ExecsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashwx_execs_total",
				Help: "Hash evaluations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		FreesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashwx_frees_total",
				Help: "Released contexts by mode",
			},
			[]string{"mode"},
		),
		LiveContexts: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "hashwx_live_contexts",
				Help: "Contexts currently allocated",
			},
		),
		SeedLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hashwx_seed_seconds",
				Help:    "SetSeed latency, including side-module linking",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"mode"},
		),
	}
}

// Outcome maps an operation error to a label value: "ok" or the error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return string(e.Kind)
	}
	return "error"
}

func (c *Collector) ObserveAlloc(mode hashwx.Mode, err error) {
	c.AllocsTotal.WithLabelValues(mode.String(), Outcome(err)).Inc()
}

func (c *Collector) ObserveSeed(mode hashwx.Mode, elapsed time.Duration, err error) {
	c.SeedsTotal.WithLabelValues(mode.String(), Outcome(err)).Inc()
	if err == nil {
		c.SeedLatency.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
	}
}

func (c *Collector) ObserveExec(mode hashwx.Mode, err error) {
	c.ExecsTotal.WithLabelValues(mode.String(), Outcome(err)).Inc()
}

func (c *Collector) ObserveFree(mode hashwx.Mode) {
	c.FreesTotal.WithLabelValues(mode.String()).Inc()
}

// OnResourceEvent tracks the live context gauge.
func (c *Collector) OnResourceEvent(e resource.Event) {
	switch e.Type {
	case resource.EventCreated:
		c.LiveContexts.Inc()
	case resource.EventDropped:
		c.LiveContexts.Dec()
	}
}
