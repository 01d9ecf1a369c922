package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SetEnabled / IsEnabled
// =============================================================================

func TestSetEnabled_True(t *testing.T) {
	original := Enabled
	defer func() { Enabled = original }()

	SetEnabled(true)
	assert.True(t, IsEnabled())
}

func TestSetEnabled_False(t *testing.T) {
	original := Enabled
	defer func() { Enabled = original }()

	SetEnabled(false)
	assert.False(t, IsEnabled())
}

// =============================================================================
// Noop wrappers used when metrics are disabled
// =============================================================================

func TestNoopCounterVec_NeverPanics(t *testing.T) {
	vec := noopCounterVec{}
	counter := vec.WithLabelValues("get_object")
	require.NotNil(t, counter)
	counter.Inc()
	counter.Add(2.0)
}

func TestNoopHistogramVec_NeverPanics(t *testing.T) {
	vec := noopHistogramVec{}
	histogram := vec.WithLabelValues("get_object")
	require.NotNil(t, histogram)
	histogram.Observe(0.125)
}

func TestNoopGaugeVec_NeverPanics(t *testing.T) {
	vec := noopGaugeVec{}
	gauge := vec.WithLabelValues("heap_alloc")
	require.NotNil(t, gauge)
	gauge.Set(10.0)
	gauge.Inc()
	gauge.Dec()
}

func TestNewGaugeFunc_Disabled_ReturnsNil(t *testing.T) {
	original := Enabled
	defer func() { Enabled = original }()
	SetEnabled(false)

	gaugeFunc := newGaugeFunc(prometheus.GaugeOpts{Name: "disabled_gauge_func", Help: "h"}, func() float64 { return 1 })
	assert.Nil(t, gaugeFunc)
}

// withEnabledRegistry enables metrics, forces a fresh Init(), and on cleanup
// restores Enabled and resets once and registry so each test observes its
// own clean registry.
func withEnabledRegistry(t *testing.T) {
	t.Helper()
	originalEnabled := Enabled
	t.Cleanup(func() {
		Enabled = originalEnabled
		once = sync.Once{}
		registry = nil
	})
	SetEnabled(true)
	once = sync.Once{}
	Init()
}

// =============================================================================
// The proxy's own metric set, registered through Init()
// =============================================================================

func TestRequestsTotal_TracksActionAndOutcome(t *testing.T) {
	withEnabledRegistry(t)

	vec := RequestsTotal.(*counterVecWrapper).CounterVec
	before := testutil.ToFloat64(vec.WithLabelValues("GetObject", "success"))
	RequestsTotal.WithLabelValues("GetObject", "success").Inc()
	after := testutil.ToFloat64(vec.WithLabelValues("GetObject", "success"))

	assert.Equal(t, before+1, after)
}

func TestDeniedRequestsTotal_TracksActionAndAccount(t *testing.T) {
	withEnabledRegistry(t)

	vec := DeniedRequestsTotal.(*counterVecWrapper).CounterVec
	before := testutil.ToFloat64(vec.WithLabelValues("PutObject", "acc-1"))
	DeniedRequestsTotal.WithLabelValues("PutObject", "acc-1").Inc()
	after := testutil.ToFloat64(vec.WithLabelValues("PutObject", "acc-1"))

	assert.Equal(t, before+1, after)
}

func TestPolicyEvaluationsTotal_TracksEffect(t *testing.T) {
	withEnabledRegistry(t)

	vec := PolicyEvaluationsTotal.(*counterVecWrapper).CounterVec
	before := testutil.ToFloat64(vec.WithLabelValues("deny"))
	PolicyEvaluationsTotal.WithLabelValues("deny").Inc()
	after := testutil.ToFloat64(vec.WithLabelValues("deny"))

	assert.Equal(t, before+1, after)
}

func TestUniKeyBucketsIndexed_ReportsSetValue(t *testing.T) {
	withEnabledRegistry(t)

	UniKeyBucketsIndexed.Set(42)
	gauge, ok := UniKeyBucketsIndexed.(prometheus.Gauge)
	require.True(t, ok)
	assert.Equal(t, float64(42), testutil.ToFloat64(gauge))
}

func TestGetRegistry_DisabledStillReturnsUsableRegistry(t *testing.T) {
	originalEnabled := Enabled
	t.Cleanup(func() {
		Enabled = originalEnabled
		once = sync.Once{}
	})
	SetEnabled(false)
	once = sync.Once{}

	reg := GetRegistry()
	require.NotNil(t, reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
