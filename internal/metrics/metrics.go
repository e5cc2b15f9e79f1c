package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portalics_refresh_cycles_total",
		Help: "Total number of calendar refresh cycles started.",
	})

	WindowFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portalics_window_failures_total",
		Help: "Total number of week windows dropped due to resolve/fetch failures.",
	})

	ParseSkippedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portalics_parse_skipped_blocks_total",
		Help: "Total number of malformed event blocks skipped by the parser.",
	})

	BuildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portalics_build_failures_total",
		Help: "Total number of refresh cycles aborted by an ICS build failure.",
	})

	PublishedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portalics_published_events",
		Help: "Number of events in the currently published calendar.",
	})

	CacheExpiryUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portalics_cache_expiry_timestamp_seconds",
		Help: "Unix time at which the published calendar expires.",
	})

	CalendarRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portalics_calendar_requests_total",
		Help: "Total number of requests served for the calendar feed.",
	})
)
