package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveGeneration(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveGeneration("hero", "success", 2*time.Second)

	families := gather(t, rec, "worryhero_generator_requests_total", "worryhero_generator_request_duration_seconds")

	counter := findMetric(t, families["worryhero_generator_requests_total"], map[string]string{
		"kind":    "hero",
		"outcome": "success",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for generation requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["worryhero_generator_request_duration_seconds"], map[string]string{
		"outcome": "success",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for generation latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 2.0
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCache(CacheOperationLoad, CacheResultCorrupt, time.Millisecond)
	rec.ObserveCache(CacheOperationPut, CacheResultDegraded, 5*time.Millisecond)

	families := gather(t, rec, "worryhero_cache_operations_total", "worryhero_cache_operation_duration_seconds")

	loadMetric := findMetric(t, families["worryhero_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationLoad),
		"result":    string(CacheResultCorrupt),
	})
	if got := loadMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected load counter 1, got %v", got)
	}

	putMetric := findMetric(t, families["worryhero_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationPut),
		"result":    string(CacheResultDegraded),
	})
	if got := putMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected put counter 1, got %v", got)
	}

	latencyMetric := findMetric(t, families["worryhero_cache_operation_duration_seconds"], map[string]string{
		"operation": string(CacheOperationPut),
		"result":    string(CacheResultDegraded),
	})
	hist := latencyMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for cache put latency")
	}
	want := 0.005
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderInFlightAndRuns(t *testing.T) {
	rec := NewRecorder(nil)
	rec.SetInFlight(4)
	rec.SetInFlight(3)
	rec.ObserveSchedulerRun("completed")

	families := gather(t, rec, "worryhero_assets_in_flight", "worryhero_scheduler_runs_total")
	gauge := families["worryhero_assets_in_flight"][0].GetGauge()
	if gauge == nil || gauge.GetValue() != 3 {
		t.Fatalf("expected in-flight gauge 3, got %v", gauge)
	}
	runs := findMetric(t, families["worryhero_scheduler_runs_total"], map[string]string{"result": "completed"})
	if got := runs.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected run counter 1, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveGeneration("hero", "failure", time.Second)
	rec.ObserveCache(CacheOperationClear, CacheResultPersisted, time.Second)
	rec.SetInFlight(1)
	rec.ObserveSchedulerRun("completed")

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
