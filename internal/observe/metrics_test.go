package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordChatTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChatTurn(ctx, "ok", 0.5)
	m.RecordChatTurn(ctx, "ok", 1.2)
	m.RecordChatTurn(ctx, "error", 0.1)

	rm := collect(t, reader)

	counter := findMetric(rm, "sophia.chat.turns")
	if counter == nil {
		t.Fatal("turn counter not found")
	}
	sum, ok := counter.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("turn counter is not a sum")
	}
	byStatus := map[string]int64{}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "status" {
				byStatus[kv.Value.AsString()] = dp.Value
			}
		}
	}
	if byStatus["ok"] != 2 || byStatus["error"] != 1 {
		t.Errorf("turns by status = %v, want ok=2 error=1", byStatus)
	}

	hist := findMetric(rm, "sophia.chat.turn.duration")
	if hist == nil {
		t.Fatal("turn duration histogram not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("turn duration is not a histogram")
	}
	var samples uint64
	for _, dp := range h.DataPoints {
		samples += dp.Count
	}
	if samples != 3 {
		t.Errorf("duration samples = %d, want 3", samples)
	}
}

func TestRecordLogin(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLogin(ctx, "created")
	m.RecordLogin(ctx, "existing")
	m.RecordLogin(ctx, "existing")

	rm := collect(t, reader)
	met := findMetric(rm, "sophia.logins")
	if met == nil {
		t.Fatal("login counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("login counter is not a sum")
	}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("outcome"))
		if !ok {
			t.Error("login data point missing outcome attribute")
			continue
		}
		want := int64(1)
		if v.AsString() == "existing" {
			want = 2
		}
		if dp.Value != want {
			t.Errorf("login count for %q = %d, want %d", v.AsString(), dp.Value, want)
		}
	}
}

func TestRecordEngineError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEngineError(ctx)
	m.RecordEngineError(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "sophia.engine.errors")
	if met == nil {
		t.Fatal("engine error counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("engine error counter is not a sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("engine errors = %+v, want a single data point of 2", sum.DataPoints)
	}
}

func TestActiveConversationsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveConversations.Add(ctx, 1)
	m.ActiveConversations.Add(ctx, 1)
	m.ActiveConversations.Add(ctx, 1)

	rm := collect(t, reader)
	met := findMetric(rm, "sophia.active_conversations")
	if met == nil {
		t.Fatal("gauge not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("gauge is not a sum")
	}
	if sum.DataPoints[0].Value != 3 {
		t.Errorf("active conversations = %d, want 3", sum.DataPoints[0].Value)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned distinct instances")
	}
}
