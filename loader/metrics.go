package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
)

var (
	log    = commonlog.GetLogger("mop.loader")
	tracer = otel.Tracer("mop.loader")
)

var (
	// compileTotal counts compiles by result: ok, error, or cached
	compileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mop_loader_compile_total",
		Help: "Source compiles by result",
	}, []string{"result"})

	// compileDuration tracks time spent inside the compiler
	compileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mop_loader_compile_duration_seconds",
		Help:    "Source compile duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
	})
)
