package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
)

// Defaults used by Load for absent keys.
const (
	DefaultDocumentKey    = "workflow-document"
	DefaultDocumentFormat = "json"
	DefaultAutosaveWindow = time.Second
	DefaultStorageDriver  = "memory"
	DefaultServerAddr     = ":8080"
	DefaultStorageRetries = 3
	DefaultRetryBackoff   = 100 * time.Millisecond
)

// Settings is the typed runtime configuration.
type Settings struct {
	Engine   EngineSettings
	Document DocumentSettings
	Storage  StorageSettings
	Server   ServerSettings
	Log      LogSettings
	Metrics  bool
	Tracing  bool
}

// EngineSettings configures the execution engine.
type EngineSettings struct {
	TickSpeed dataflow.TickSpeed
	Autostart bool
}

// DocumentSettings configures how the workflow document is persisted.
type DocumentSettings struct {
	Key            string
	Format         string
	Compress       bool
	AutosaveWindow time.Duration
}

// StorageSettings selects a storage backend. DSN is used by postgres,
// Path by sqlite and file. Failed document reads and writes are attempted
// up to Retries times, pausing RetryBackoff (doubling) in between.
type StorageSettings struct {
	Driver       string
	DSN          string
	Path         string
	Retries      int
	RetryBackoff time.Duration
}

// ServerSettings configures the HTTP control surface. An empty Addr
// disables it.
type ServerSettings struct {
	Addr string
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string
	Format string
}

// Default returns the settings used when no configuration is given.
func Default() Settings {
	return Settings{
		Engine: EngineSettings{TickSpeed: dataflow.TickNormal},
		Document: DocumentSettings{
			Key:            DefaultDocumentKey,
			Format:         DefaultDocumentFormat,
			AutosaveWindow: DefaultAutosaveWindow,
		},
		Storage: StorageSettings{
			Driver:       DefaultStorageDriver,
			Retries:      DefaultStorageRetries,
			RetryBackoff: DefaultRetryBackoff,
		},
		Server:  ServerSettings{Addr: DefaultServerAddr},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

// Load derives Settings from cfg. Every invalid value is reported; the
// returned Settings hold defaults in their place.
func Load(cfg Config) (Settings, error) {
	s := Default()
	var result *multierror.Error

	if raw := cfg.Any("engine.tickSpeed", nil); raw != nil {
		speed, err := parseTickSpeed(raw)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("engine.tickSpeed: %w", err))
		} else {
			s.Engine.TickSpeed = speed
		}
	}
	s.Engine.Autostart = cfg.Bool("engine.autostart", s.Engine.Autostart)

	s.Document.Key = cfg.String("document.key", s.Document.Key)
	s.Document.Format = strings.ToLower(cfg.String("document.format", s.Document.Format))
	s.Document.Compress = cfg.Bool("document.compress", s.Document.Compress)
	s.Document.AutosaveWindow = cfg.Duration("document.autosave", s.Document.AutosaveWindow)
	switch s.Document.Format {
	case "json", "yaml", "msgpack":
	default:
		result = multierror.Append(result, fmt.Errorf("document.format: unknown format %q", s.Document.Format))
		s.Document.Format = DefaultDocumentFormat
	}
	if s.Document.Key == "" {
		result = multierror.Append(result, fmt.Errorf("document.key: must not be empty"))
		s.Document.Key = DefaultDocumentKey
	}
	if s.Document.AutosaveWindow < 0 {
		result = multierror.Append(result, fmt.Errorf("document.autosave: negative window %s", s.Document.AutosaveWindow))
		s.Document.AutosaveWindow = DefaultAutosaveWindow
	}

	s.Storage.Driver = strings.ToLower(cfg.String("storage.driver", s.Storage.Driver))
	s.Storage.DSN = cfg.String("storage.dsn", s.Storage.DSN)
	s.Storage.Path = cfg.String("storage.path", s.Storage.Path)
	s.Storage.Retries = cfg.Int("storage.retries", s.Storage.Retries)
	s.Storage.RetryBackoff = cfg.Duration("storage.retryBackoff", s.Storage.RetryBackoff)
	if s.Storage.Retries < 1 {
		result = multierror.Append(result, fmt.Errorf("storage.retries: must be at least 1, got %d", s.Storage.Retries))
		s.Storage.Retries = DefaultStorageRetries
	}
	if s.Storage.RetryBackoff < 0 {
		result = multierror.Append(result, fmt.Errorf("storage.retryBackoff: negative backoff %s", s.Storage.RetryBackoff))
		s.Storage.RetryBackoff = DefaultRetryBackoff
	}
	switch s.Storage.Driver {
	case "memory":
	case "sqlite", "file":
		if s.Storage.Path == "" {
			result = multierror.Append(result, fmt.Errorf("storage.path: required for driver %s", s.Storage.Driver))
		}
	case "postgres":
		if s.Storage.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("storage.dsn: required for driver postgres"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("storage.driver: unknown driver %q", s.Storage.Driver))
		s.Storage.Driver = DefaultStorageDriver
	}

	s.Server.Addr = cfg.String("server.addr", s.Server.Addr)

	s.Log.Level = strings.ToLower(cfg.String("log.level", s.Log.Level))
	s.Log.Format = strings.ToLower(cfg.String("log.format", s.Log.Format))
	if _, err := parseLevel(s.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
		s.Log.Level = "info"
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		result = multierror.Append(result, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
		s.Log.Format = "text"
	}

	s.Metrics = cfg.Bool("metrics", s.Metrics)
	s.Tracing = cfg.Bool("tracing", s.Tracing)

	return s, result.ErrorOrNil()
}

// parseTickSpeed accepts a preset name, a duration string or a number of
// milliseconds.
func parseTickSpeed(raw any) (dataflow.TickSpeed, error) {
	switch v := raw.(type) {
	case string:
		return dataflow.ParseTickSpeed(v)
	case int:
		return dataflow.ParseTickSpeed(fmt.Sprint(v))
	case int64:
		return dataflow.ParseTickSpeed(fmt.Sprint(v))
	case float64:
		if v != float64(int64(v)) {
			return dataflow.TickSpeed{}, fmt.Errorf("%w: %v", dataflow.ErrInvalidTickSpeed, v)
		}
		return dataflow.ParseTickSpeed(fmt.Sprint(int64(v)))
	}
	return dataflow.TickSpeed{}, fmt.Errorf("%w: %v", dataflow.ErrInvalidTickSpeed, raw)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// NewLogger builds a logger writing to w according to the log settings.
func (l LogSettings) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
