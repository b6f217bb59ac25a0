package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
	"github.com/randalmurphal/dataflow/pkg/dataflow/nodetypes"
	"github.com/randalmurphal/dataflow/pkg/dataflow/server"
	"github.com/randalmurphal/dataflow/pkg/dataflow/workbench"
)

const disposeTimeout = 10 * time.Second

// RunCommand loads the configured workflow and runs its engine.
type RunCommand struct {
	Meta
}

func (c *RunCommand) Run(args []string) int {
	var (
		configPath string
		addr       string
		noServer   bool
		duration   time.Duration
	)
	fs := c.flagSet("run", c.Help)
	fs.StringVar(&configPath, "config", "", "")
	fs.StringVar(&addr, "addr", "", "")
	fs.BoolVar(&noServer, "no-server", false, "")
	fs.DurationVar(&duration, "duration", 0, "")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	settings := config.Default()
	if configPath != "" {
		cfg, err := config.FromFS(c.FS, configPath)
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
		if settings, err = config.Load(cfg); err != nil {
			c.Ui.Error(fmt.Sprintf("invalid configuration:\n%s", err))
			return 1
		}
	}
	if addr != "" {
		settings.Server.Addr = addr
	}
	if noServer {
		settings.Server.Addr = ""
	}

	var opts []workbench.Option
	if c.Logger != nil {
		opts = append(opts, workbench.WithLogger(c.Logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := workbench.FromSettings(ctx, settings, nodetypes.Builtins(), opts...)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := rt.LoadError(); err != nil {
		c.Ui.Warn(fmt.Sprintf("some document entries were rejected:\n%s", err))
	}
	rt.Engine().Start()
	c.Ui.Info(fmt.Sprintf("running %d nodes (tick speed %s)", rt.Store().Len(), rt.Engine().TickSpeed()))

	var srv *server.Server
	serveErr := make(chan error, 1)
	if settings.Server.Addr != "" {
		srv = server.New(rt)
		go func() { serveErr <- srv.Listen(settings.Server.Addr) }()
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	code := 0
	select {
	case <-c.ShutdownCh:
		c.Ui.Info("interrupted, shutting down")
	case <-timeout:
	case err := <-serveErr:
		c.Ui.Error(fmt.Sprintf("http server: %s", err))
		code = 1
	}

	stopCtx, stop := context.WithTimeout(context.Background(), disposeTimeout)
	defer stop()
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			c.Ui.Error(fmt.Sprintf("http shutdown: %s", err))
			code = 1
		}
	}

	graphErrs := rt.Store().GraphErrors()
	nodes := rt.Store().Len()
	if err := rt.Dispose(stopCtx); err != nil {
		c.Ui.Error(fmt.Sprintf("shutdown: %s", err))
		code = 1
	}
	c.Ui.Output(fmt.Sprintf("stopped: %d nodes, %d graph errors", nodes, len(graphErrs)))
	return code
}

func (c *RunCommand) Help() string {
	helpText := `
Usage: workbench run [options]

  Loads the workflow document from the configured storage, starts the
  execution engine and keeps running until interrupted. Edits made over
  HTTP are saved back to storage.

Options:

  -config=path      YAML or JSON configuration file. Defaults apply when
                    omitted: in-memory storage, normal tick speed.

  -addr=host:port   Serve the HTTP control surface on this address,
                    overriding server.addr.

  -no-server        Do not serve HTTP.

  -duration=d       Stop after d instead of waiting for an interrupt.
`
	return strings.TrimSpace(helpText)
}

func (c *RunCommand) Synopsis() string {
	return "Run a workflow"
}
