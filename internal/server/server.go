package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
	"github.com/fathom-research/fathom/internal/history"
)

// Runner is the orchestration surface the API depends on.
type Runner interface {
	Process(ctx context.Context, query string) (core.OrchestratorResult, error)
	ProcessStream(ctx context.Context, query string, events chan<- core.Event) (core.OrchestratorResult, error)
}

// Server hosts the HTTP API in front of one orchestrator.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	runner  Runner
	history *history.Selector
	logger  *log.Logger
}

// New builds the echo app with all routes registered. history may be
// nil when the deployment has no conversation memory.
func New(cfg *config.Config, runner Runner, hist *history.Selector, tel *telemetry.Telemetry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	s := &Server{cfg: cfg, runner: runner, history: hist, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tel.Registry(), promhttp.HandlerOpts{})))

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(authMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	api.POST("/runs", s.createRun)
	api.GET("/runs/stream", s.streamRun)

	s.echo = e
	return s
}

// Start blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address
	if addr == "" {
		addr = ":10010"
	}
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// ServeHTTP exposes the app for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.echo.ServeHTTP(w, r) }

type runRequest struct {
	Query string `json:"query"`
}

func (s *Server) createRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	ctx := c.Request().Context()
	if s.cfg.General.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.General.DefaultTimeout)
		defer cancel()
	}
	result, err := s.runner.Process(ctx, req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.recordTurn(req.Query, result)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) streamRun(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	ctx := c.Request().Context()
	events := make(chan core.Event, 64)
	type runDone struct {
		result core.OrchestratorResult
		err    error
	}
	done := make(chan runDone, 1)
	go func() {
		result, err := s.runner.ProcessStream(ctx, query, events)
		done <- runDone{result: result, err: err}
	}()

	for ev := range events {
		if err := writeSSE(resp, ev.Type, ev.Data); err != nil {
			return err
		}
		flusher.Flush()
	}

	outcome := <-done
	if outcome.err != nil {
		_ = writeSSE(resp, "error", map[string]string{"error": outcome.err.Error()})
		flusher.Flush()
		return nil
	}
	s.recordTurn(query, outcome.result)
	if err := writeSSE(resp, "done", outcome.result); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) recordTurn(query string, result core.OrchestratorResult) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(history.Turn{
		Query:   query,
		Answer:  result.Answer.Content,
		Sources: result.Sources,
	}); err != nil {
		s.logger.Printf("Warning: recording history turn failed: %v", err)
	}
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	_, err = w.Write([]byte("data: " + string(payload) + "\n\n"))
	return err
}
