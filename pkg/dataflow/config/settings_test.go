package config_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := config.Load(config.New(nil))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), s)
	assert.Equal(t, "workflow-document", s.Document.Key)
	assert.Equal(t, time.Second, s.Document.AutosaveWindow)
	assert.Equal(t, dataflow.TickNormal, s.Engine.TickSpeed)
}

func TestLoad_FullYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
engine:
  tickSpeed: 40
  autostart: true
document:
  key: flows/main
  format: YAML
  compress: true
  autosave: 250ms
storage:
  driver: sqlite
  path: /tmp/flows.db
  retries: 5
  retryBackoff: 250
server:
  addr: "127.0.0.1:9000"
log:
  level: debug
  format: json
metrics: true
tracing: true
`))
	require.NoError(t, err)

	s, err := config.Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, dataflow.TickEvery(40*time.Millisecond), s.Engine.TickSpeed)
	assert.True(t, s.Engine.Autostart)
	assert.Equal(t, config.DocumentSettings{
		Key: "flows/main", Format: "yaml", Compress: true, AutosaveWindow: 250 * time.Millisecond,
	}, s.Document)
	assert.Equal(t, config.StorageSettings{
		Driver: "sqlite", Path: "/tmp/flows.db", Retries: 5, RetryBackoff: 250 * time.Millisecond,
	}, s.Storage)
	assert.Equal(t, "127.0.0.1:9000", s.Server.Addr)
	assert.Equal(t, config.LogSettings{Level: "debug", Format: "json"}, s.Log)
	assert.True(t, s.Metrics)
	assert.True(t, s.Tracing)
}

func TestLoad_TickSpeedForms(t *testing.T) {
	tests := []struct {
		raw  any
		want dataflow.TickSpeed
	}{
		{"slow", dataflow.TickSlow},
		{"fast", dataflow.TickFast},
		{"100ms", dataflow.TickEvery(100 * time.Millisecond)},
		{100, dataflow.TickEvery(100 * time.Millisecond)},
		{float64(16), dataflow.TickEvery(16 * time.Millisecond)},
	}
	for _, tt := range tests {
		cfg := config.New(map[string]any{"engine": map[string]any{"tickSpeed": tt.raw}})
		s, err := config.Load(cfg)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, s.Engine.TickSpeed, tt.raw)
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	cfg := config.New(map[string]any{
		"engine":   map[string]any{"tickSpeed": "warp"},
		"document": map[string]any{"format": "xml", "key": ""},
		"storage":  map[string]any{"driver": "postgres", "retries": 0},
		"log":      map[string]any{"level": "loud", "format": "xml"},
	})

	s, err := config.Load(cfg)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 7)
	assert.ErrorIs(t, err, dataflow.ErrInvalidTickSpeed)

	// Invalid values fall back to defaults.
	assert.Equal(t, "json", s.Document.Format)
	assert.Equal(t, config.DefaultDocumentKey, s.Document.Key)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, config.DefaultStorageRetries, s.Storage.Retries)
	assert.Equal(t, dataflow.TickNormal, s.Engine.TickSpeed)
}

func TestLogSettings_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.LogSettings{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
