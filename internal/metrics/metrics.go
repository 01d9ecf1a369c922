package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "piam_proxy"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	RequestsTotal          CounterVec
	RequestDurationSeconds HistogramVec
	RequestErrorsTotal     CounterVec
	DeniedRequestsTotal    CounterVec

	PolicyEvaluationsTotal CounterVec
	PolicyDurationSeconds  HistogramVec

	StateUpdatesTotal        CounterVec
	StateUpdateFailuresTotal Counter
	StateLastSuccessUnix     Gauge

	UniKeyBucketsIndexed   Gauge
	UniKeyLookupsTotal     CounterVec
	UpstreamLatencySeconds HistogramVec

	Up          Gauge
	Goroutines  GaugeFunc
	MemoryBytes GaugeVec

	AnalyticsPublishedTotal CounterVec
	AnalyticsErrorsTotal    CounterVec
)

// initMetrics initializes all metric variables.
// This must be called after SetEnabled() to ensure proper noop behavior when disabled.
func initMetrics() {
	RequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of proxied requests by S3 action and outcome",
		},
		[]string{"action", "outcome"},
	)

	RequestDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of request handling, from parse through upstream response, in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"action"},
	)

	RequestErrorsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Total number of requests that failed before reaching upstream, by error kind",
		},
		[]string{"error_kind"},
	)

	DeniedRequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "denied_requests_total",
			Help:      "Total number of requests denied by policy evaluation",
		},
		[]string{"action", "account"},
	)

	PolicyEvaluationsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_evaluations_total",
			Help:      "Total number of policy evaluations by effect",
		},
		[]string{"effect"},
	)

	PolicyDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "policy_duration_seconds",
			Help:      "Duration of evaluating a request against a user's resolved policies, in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		},
		[]string{"action"},
	)

	StateUpdatesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "Total number of ProxyState refresh attempts from the manager",
		},
		[]string{"status"},
	)

	StateUpdateFailuresTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_update_failures_total",
			Help:      "Total number of failed periodic ProxyState refreshes",
		},
	)

	StateLastSuccessUnix = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_last_success_unix_seconds",
			Help:      "Unix timestamp of the last successful ProxyState refresh",
		},
	)

	UniKeyBucketsIndexed = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uni_key_buckets_indexed",
			Help:      "Number of buckets currently indexed by the uni-key bucket-to-account map",
		},
	)

	UniKeyLookupsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uni_key_lookups_total",
			Help:      "Total number of uni-key bucket-ownership lookups by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamLatencySeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Latency of the forwarded request as observed against the S3-compatible upstream",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"region"},
	)

	Up = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Proxy liveness indicator (1=up, 0=down)",
		},
	)

	Goroutines = newGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
		func() float64 {
			return float64(runtime.NumGoroutine())
		},
	)

	MemoryBytes = newGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"},
	)

	AnalyticsPublishedTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_published_total",
			Help:      "Total number of request events published to analytics publishers",
		},
		[]string{"publisher"},
	)

	AnalyticsErrorsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_errors_total",
			Help:      "Total number of analytics publishing failures",
		},
		[]string{"publisher"},
	)
}

func registerCounterVec(v CounterVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*counterVecWrapper); ok {
		if err := registry.Register(wrapper.CounterVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerHistogramVec(v HistogramVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*histogramVecWrapper); ok {
		if err := registry.Register(wrapper.HistogramVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGaugeVec(v GaugeVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*gaugeVecWrapper); ok {
		if err := registry.Register(wrapper.GaugeVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGauge(v Gauge) {
	if !Enabled {
		return
	}
	if g, ok := v.(prometheus.Gauge); ok {
		if err := registry.Register(g); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerCounter(v Counter) {
	if !Enabled {
		return
	}
	if c, ok := v.(prometheus.Counter); ok {
		if err := registry.Register(c); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGaugeFunc(v GaugeFunc) {
	if !Enabled || v == nil {
		return
	}
	if err := registry.Register(v); err != nil {
		// Already registered or other error - ignore
	}
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registerCounterVec(RequestsTotal)
	registerHistogramVec(RequestDurationSeconds)
	registerCounterVec(RequestErrorsTotal)
	registerCounterVec(DeniedRequestsTotal)

	registerCounterVec(PolicyEvaluationsTotal)
	registerHistogramVec(PolicyDurationSeconds)

	registerCounterVec(StateUpdatesTotal)
	registerCounter(StateUpdateFailuresTotal)
	registerGauge(StateLastSuccessUnix)

	registerGauge(UniKeyBucketsIndexed)
	registerCounterVec(UniKeyLookupsTotal)
	registerHistogramVec(UpstreamLatencySeconds)

	registerGauge(Up)
	registerGaugeFunc(Goroutines)
	registerGaugeVec(MemoryBytes)

	registerCounterVec(AnalyticsPublishedTotal)
	registerCounterVec(AnalyticsErrorsTotal)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// This must be called after SetEnabled() has been called.
func Init() *prometheus.Registry {
	once.Do(func() {
		// Initialize all metric variables first
		initMetrics()

		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}

// UpdateMemoryMetrics updates memory-related metrics
func UpdateMemoryMetrics() {
	if !Enabled {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryBytes.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryBytes.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryBytes.WithLabelValues("stack").Set(float64(m.StackInuse))
}
