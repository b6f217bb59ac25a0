package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a test meter provider and returns its reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attributeKey(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordNodeExecution(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordNodeExecution(ctx, "n1", "string", "success", 50*time.Millisecond)
	m.RecordNodeExecution(ctx, "n2", "string", "error", 10*time.Millisecond)
	m.RecordNodeExecution(ctx, "n3", "delay", "aborted", 10*time.Millisecond)

	rm := collectMetrics(t, reader)

	executions := findMetric(rm, "dataflow.node.executions")
	require.NotNil(t, executions)
	assert.Equal(t, int64(1), sumFor(t, executions, "node_id", "n1"))
	assert.Equal(t, int64(1), sumFor(t, executions, "status", "aborted"))

	errs := findMetric(rm, "dataflow.node.errors")
	require.NotNil(t, errs)
	assert.Equal(t, int64(1), sumFor(t, errs, "node_id", "n2"))
	assert.Equal(t, int64(0), sumFor(t, errs, "node_id", "n3"), "aborted runs are not errors")

	latency := findMetric(rm, "dataflow.node.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordTick(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordTick(context.Background(), 0, time.Millisecond)
	m.RecordTick(context.Background(), 3, time.Millisecond)

	rm := collectMetrics(t, reader)
	ticks := findMetric(rm, "dataflow.engine.ticks")
	require.NotNil(t, ticks)

	sum, ok := ticks.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.NotNil(t, findMetric(rm, "dataflow.engine.tick_latency_ms"))
}

func TestRecordDocumentSave(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordDocumentSave(context.Background(), "doc", 1024, nil)
	m.RecordDocumentSave(context.Background(), "doc", 0, errors.New("disk full"))

	rm := collectMetrics(t, reader)

	size := findMetric(rm, "dataflow.document.size_bytes")
	require.NotNil(t, size)
	hist, ok := size.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, int64(1024), hist.DataPoints[0].Sum)

	errs := findMetric(rm, "dataflow.document.save_errors")
	require.NotNil(t, errs)
	assert.Equal(t, int64(1), sumFor(t, errs, "key", "doc"))
}
