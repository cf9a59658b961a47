package vm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mop.vm")

var (
	// dispatchTotal counts dispatches by operation and outcome
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mop_dispatch_total",
		Help: "Total dispatches by operation kind and outcome",
	}, []string{"kind", "outcome"})

	// cacheResults counts resolution cache lookups
	cacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mop_resolution_cache_total",
		Help: "Resolution cache lookups by result",
	}, []string{"result"})

	// metaclassBuilds counts completed class metadata builds
	metaclassBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mop_metaclass_builds_total",
		Help: "Class metadata builds by result",
	}, []string{"result"})

	// metaclassBuildDuration tracks the indexing walk latency
	metaclassBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mop_metaclass_build_duration_seconds",
		Help:    "Class metadata build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~160ms
	})

	// fallbackTotal counts which fallback stage answered a failed lookup
	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mop_fallback_total",
		Help: "Fallback chain resolutions by stage",
	}, []string{"stage"})
)
