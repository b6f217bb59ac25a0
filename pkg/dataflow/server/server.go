// Package server exposes a workflow runtime over HTTP.
//
// Every response body is JSON. Failures are reported as {"error": "..."}
// with a status derived from the underlying sentinel error.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
	"github.com/randalmurphal/dataflow/pkg/dataflow/workbench"
)

// Server routes HTTP requests to one runtime.
type Server struct {
	app    *fiber.App
	rt     *workbench.Runtime
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. The runtime logger is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds the routes for rt.
func New(rt *workbench.Runtime, opts ...Option) *Server {
	s := &Server{rt: rt, logger: rt.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "dataflow",
		ErrorHandler: s.handleError,
	})
	s.app.Use(recoverer.New())
	s.app.Use(s.logRequest)
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", slog.String("addr", addr))
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/document", s.getDocument)
	s.app.Put("/document", s.putDocument)
	s.app.Post("/document/save", s.saveDocument)

	s.app.Get("/nodes", s.listNodes)
	s.app.Post("/nodes", s.createNode)
	s.app.Get("/nodes/:id", s.getNode)
	s.app.Delete("/nodes/:id", s.deleteNode)
	s.app.Post("/nodes/:id/rename", s.renameNode)
	s.app.Put("/nodes/:id/data", s.updateData)

	// Edge ids contain slashes, so they are matched with a wildcard.
	s.app.Get("/edges", s.listEdges)
	s.app.Post("/edges", s.createEdge)
	s.app.Delete("/edges/*", s.deleteEdge)

	s.app.Get("/errors", s.listErrors)
	s.app.Post("/errors/prune", s.pruneErrors)

	s.app.Get("/engine", s.engineState)
	s.app.Post("/engine/start", s.startEngine)
	s.app.Post("/engine/stop", s.stopEngine)
	s.app.Post("/engine/queue/:id", s.queueNode)
	s.app.Put("/engine/tick-speed", s.setTickSpeed)
}

func (s *Server) logRequest(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	s.logger.Debug("http request",
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// handleError writes err as {"error": "..."}.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("http request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// badRequest marks err as a client error.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func statusFor(err error) int {
	var fe *fiber.Error
	var br badRequest
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &br):
		return fiber.StatusBadRequest
	case errors.Is(err, dataflow.ErrNodeNotFound),
		errors.Is(err, dataflow.ErrEdgeNotFound),
		errors.Is(err, dataflow.ErrPortNotFound),
		errors.Is(err, dataflow.ErrTypeNotFound),
		errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, dataflow.ErrNodeExists),
		errors.Is(err, dataflow.ErrPortExists),
		errors.Is(err, dataflow.ErrEngineRunning),
		errors.Is(err, dataflow.ErrNodeRunning),
		errors.Is(err, dataflow.ErrNodeDisabled),
		errors.Is(err, dataflow.ErrStoreClosed),
		errors.Is(err, workbench.ErrDisposed):
		return fiber.StatusConflict
	case errors.Is(err, dataflow.ErrInvalidID),
		errors.Is(err, dataflow.ErrInvalidMode),
		errors.Is(err, dataflow.ErrInvalidParent),
		errors.Is(err, dataflow.ErrInvalidTickSpeed):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// bindJSON decodes the request body into v.
func bindJSON(c fiber.Ctx, v any) error {
	if err := c.Bind().JSON(v); err != nil {
		return badRequest{err: errors.New("invalid body: " + err.Error())}
	}
	return nil
}
