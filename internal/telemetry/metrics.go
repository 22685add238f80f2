// Package telemetry exports pipeline metrics to Prometheus and serves the
// monitor HTTP endpoints.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of pipeline counters. The coordinator
// assembles one per scrape from the runtime, queue, dispatcher and news
// aggregator, so no component carries a metrics dependency.
type Stats struct {
	ScannerTicks     map[string]uint64
	ScannerErrors    map[string]int
	QueueDepth       int
	QueueDropped     map[string]uint64
	AlertRetries     uint64
	DisabledChannels int
	SourceUp         map[string]bool
	WatchlistSize    int
}

// Collector exposes a Stats snapshot as Prometheus metrics.
type Collector struct {
	snapshot func() Stats

	scannerTicks  *prometheus.Desc
	scannerErrors *prometheus.Desc
	queueDepth    *prometheus.Desc
	queueDropped  *prometheus.Desc
	alertRetries  *prometheus.Desc
	disabledChans *prometheus.Desc
	sourceUp      *prometheus.Desc
	watchlistSize *prometheus.Desc
}

// NewCollector builds a collector over the snapshot function.
func NewCollector(snapshot func() Stats) *Collector {
	return &Collector{
		snapshot: snapshot,
		scannerTicks: prometheus.NewDesc("equityrun_scanner_ticks_total",
			"Completed scanner ticks", []string{"scanner"}, nil),
		scannerErrors: prometheus.NewDesc("equityrun_scanner_consecutive_errors",
			"Consecutive tick failures per scanner", []string{"scanner"}, nil),
		queueDepth: prometheus.NewDesc("equityrun_candidate_queue_depth",
			"Candidates waiting for dispatch", nil, nil),
		queueDropped: prometheus.NewDesc("equityrun_candidates_dropped_total",
			"Candidates dropped by queue back-pressure", []string{"priority"}, nil),
		alertRetries: prometheus.NewDesc("equityrun_alert_retries_total",
			"Transient channel delivery retries", nil, nil),
		disabledChans: prometheus.NewDesc("equityrun_alert_channels_disabled",
			"Alert channels currently disabled", nil, nil),
		sourceUp: prometheus.NewDesc("equityrun_news_source_up",
			"1 when the last fetch from the source succeeded", []string{"source"}, nil),
		watchlistSize: prometheus.NewDesc("equityrun_watchlist_size",
			"Symbols on the watchlist", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scannerTicks
	ch <- c.scannerErrors
	ch <- c.queueDepth
	ch <- c.queueDropped
	ch <- c.alertRetries
	ch <- c.disabledChans
	ch <- c.sourceUp
	ch <- c.watchlistSize
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	for scanner, ticks := range s.ScannerTicks {
		ch <- prometheus.MustNewConstMetric(c.scannerTicks, prometheus.CounterValue, float64(ticks), scanner)
	}
	for scanner, errs := range s.ScannerErrors {
		ch <- prometheus.MustNewConstMetric(c.scannerErrors, prometheus.GaugeValue, float64(errs), scanner)
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.QueueDepth))
	for priority, n := range s.QueueDropped {
		ch <- prometheus.MustNewConstMetric(c.queueDropped, prometheus.CounterValue, float64(n), priority)
	}
	ch <- prometheus.MustNewConstMetric(c.alertRetries, prometheus.CounterValue, float64(s.AlertRetries))
	ch <- prometheus.MustNewConstMetric(c.disabledChans, prometheus.GaugeValue, float64(s.DisabledChannels))
	for source, up := range s.SourceUp {
		v := 0.0
		if up {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.sourceUp, prometheus.GaugeValue, v, source)
	}
	ch <- prometheus.MustNewConstMetric(c.watchlistSize, prometheus.GaugeValue, float64(s.WatchlistSize))
}

// NewRegistry returns a registry with the collector and the standard Go and
// process collectors registered.
func NewRegistry(snapshot func() Stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(snapshot))
	return reg
}
