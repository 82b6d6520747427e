package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying attribute key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				total += dp.Value
			}
		}
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordDictionaryOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDictionaryOp(ctx, "upsert", nil, 120*time.Millisecond)
	m.RecordDictionaryOp(ctx, "upsert", nil, 80*time.Millisecond)
	m.RecordDictionaryOp(ctx, "upsert", errors.New("boom"), time.Second)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "sumirevox.dictionary.ops", "status", StatusOK); got != 2 {
		t.Errorf("ok ops = %d, want 2", got)
	}
	if got := sumFor(t, rm, "sumirevox.dictionary.ops", "status", StatusError); got != 1 {
		t.Errorf("error ops = %d, want 1", got)
	}

	met := findMetric(rm, "sumirevox.dictionary.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 3 {
		t.Errorf("duration data points = %+v, want one point with 3 samples", hist.DataPoints)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DictionaryFailedDeletes.Add(ctx, 2)
	m.SettingsRecovered.Add(ctx, 1)
	m.RecordSettingsOp(ctx, "get", nil)
	m.RecordSettingsOp(ctx, "set", errors.New("db down"))
	m.RecordVoicevoxRequest(ctx, "user_dict", StatusOK)
	m.RecordVoicevoxRequest(ctx, "user_dict_word", "500")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"sumirevox.dictionary.failed_deletes", "", "", 2},
		{"sumirevox.settings.recovered", "", "", 1},
		{"sumirevox.settings.ops", "op", "get", 1},
		{"sumirevox.settings.ops", "status", StatusError, 1},
		{"sumirevox.voicevox.requests", "endpoint", "user_dict", 1},
		{"sumirevox.voicevox.requests", "status", "500", 1},
	}
	for _, tt := range tests {
		if got := sumFor(t, rm, tt.name, tt.key, tt.value); got != tt.want {
			t.Errorf("%s{%s=%q} = %d, want %d", tt.name, tt.key, tt.value, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	if got := Status(nil); got != StatusOK {
		t.Errorf("Status(nil) = %q, want %q", got, StatusOK)
	}
	if got := Status(errors.New("x")); got != StatusError {
		t.Errorf("Status(err) = %q, want %q", got, StatusError)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05)

	rm := collect(t, reader)
	met := findMetric(rm, "sumirevox.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	if _, ok := met.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatal("metric is not a histogram")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
