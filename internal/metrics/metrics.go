// Package metrics exposes mixer state to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satindergrewal/ambimix/internal/fanout"
	"github.com/satindergrewal/ambimix/internal/mixer"
)

// Source reports the live mixer state sampled at scrape time.
type Source interface {
	Tracks() []mixer.TrackInfo
}

// Collector owns a registry with the ambimix metrics.
type Collector struct {
	reg      *prometheus.Registry
	events   *prometheus.CounterVec
	failures prometheus.Counter
	skipped  prometheus.Counter
}

// New registers gauges sampling src plus event counters, and the standard
// Go runtime collectors.
func New(src Source) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ambimix",
			Name:      "events_total",
			Help:      "Engine events by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambimix",
			Name:      "track_failures_total",
			Help:      "Track status changes that carried an output error.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambimix",
			Name:      "session_skipped_tracks_total",
			Help:      "Tracks skipped while loading sessions.",
		}),
	}
	count := func(status mixer.Status) func() float64 {
		return func() float64 {
			n := 0
			for _, t := range src.Tracks() {
				if t.Status == status {
					n++
				}
			}
			return float64(n)
		}
	}
	reg.MustRegister(
		c.events, c.failures, c.skipped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ambimix", Name: "tracks_loaded", Help: "Tracks in the mixer.",
		}, func() float64 { return float64(len(src.Tracks())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ambimix", Name: "tracks_playing", Help: "Tracks currently playing.",
		}, count(mixer.Playing)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ambimix", Name: "tracks_paused", Help: "Tracks currently paused.",
		}, count(mixer.Paused)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ambimix", Name: "tracks_automated", Help: "Tracks with automation enabled.",
		}, func() float64 {
			n := 0
			for _, t := range src.Tracks() {
				if t.Automation.Enabled {
					n++
				}
			}
			return float64(n)
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Observe counts one engine event.
func (c *Collector) Observe(ev mixer.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == mixer.EventTrackStatus && ev.Err != "" {
		c.failures.Inc()
	}
	if ev.Kind == mixer.EventSessionLoaded {
		c.skipped.Add(float64(len(ev.Skipped)))
	}
}

// Run counts events from l until ctx is done or l is unsubscribed.
func (c *Collector) Run(ctx context.Context, l *fanout.Listener[mixer.Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case ev := <-l.C:
			c.Observe(ev)
		}
	}
}
