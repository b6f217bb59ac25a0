/*
Package config loads runtime configuration for dataflow.

Config wraps a map[string]any decoded from YAML or JSON and extracts typed
values with defaults. Keys may be dotted paths into nested sections:

	cfg, err := config.FromFile("dataflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	window := cfg.Duration("document.autosave", time.Second)

Load turns a Config into Settings, reporting every invalid value at once:

	engine:
	  tickSpeed: normal     # slow | normal | fast | 250 | 40ms
	  autostart: true
	document:
	  key: workflow-document
	  format: yaml          # json | yaml | msgpack
	  compress: true        # zstd
	  autosave: 1s
	storage:
	  driver: sqlite        # memory | sqlite | postgres | file
	  path: ./workflow.db
	  retries: 3            # attempts per document read or write
	  retryBackoff: 100ms
	server:
	  addr: ":8080"
	log:
	  level: debug
	  format: json
	metrics: true
	tracing: false

Bare numbers given for durations are milliseconds.
*/
package config
