package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetricsRegistered(t *testing.T) {
	ObserveLogin("success")
	ObserveComparison(OutcomeMatch, 10*time.Millisecond)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"facelogin_login_attempts_total":        false,
		"facelogin_comparisons_total":           false,
		"facelogin_comparison_duration_seconds": false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestObserveComparison(t *testing.T) {
	before := counterValue(t, ComparisonsTotal, OutcomeError)
	beforeCount := histogramCount(t, ComparisonDuration)

	ObserveComparison(OutcomeError, 250*time.Millisecond)

	if got := counterValue(t, ComparisonsTotal, OutcomeError); got != before+1 {
		t.Errorf("error comparisons = %v, want %v", got, before+1)
	}
	if got := histogramCount(t, ComparisonDuration); got != beforeCount+1 {
		t.Errorf("histogram count = %d, want %d", got, beforeCount+1)
	}
}
