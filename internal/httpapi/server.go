// Package httpapi exposes the tools, chart rendering and metrics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"montewalk/internal/chart"
	"montewalk/internal/domain"
	"montewalk/internal/metrics"
	"montewalk/internal/tools"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Server serves the HTTP API.
type Server struct {
	echo    *echo.Echo
	tools   *tools.Service
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewServer builds the Echo router. gatherer backs /metrics.
func NewServer(svc *tools.Service, rec *metrics.Recorder, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		echo:    echo.New(),
		tools:   svc,
		metrics: rec,
		log:     logger.With().Str("component", "httpapi").Logger(),
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(s.observe)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.GET("/tools", s.handleListTools)
	api.POST("/tools/:name", s.handleCallTool)
	api.POST("/charts/backtest", s.handleBacktestChart)
	api.POST("/charts/simulation", s.handleSimulationChart)
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// observe logs each request and counts it by route template.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		status := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, c.Request().Method, strconv.Itoa(status))

		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", c.Request().Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, ListToolsResponse{Tools: s.tools.List()})
}

func (s *Server) handleCallTool(c echo.Context) error {
	name := c.Param("name")
	args, err := readBody(c)
	if err != nil {
		return s.writeError(c, err)
	}
	resp, err := s.tools.Call(c.Request().Context(), name, args)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, ToolResponse{Tool: name, Result: resp})
}

func (s *Server) handleBacktestChart(c echo.Context) error {
	ctx := c.Request().Context()
	var req tools.BacktestRequest
	if err := s.decode(ctx, c, &req); err != nil {
		return s.writeError(c, err)
	}
	resp, err := s.tools.RunBacktest(ctx, req)
	if err != nil {
		return s.writeError(c, err)
	}
	png, err := chart.EquityCurve(resp.Result)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (s *Server) handleSimulationChart(c echo.Context) error {
	ctx := c.Request().Context()
	var req tools.MonteCarloRequest
	if err := s.decode(ctx, c, &req); err != nil {
		return s.writeError(c, err)
	}
	resp, err := s.tools.MonteCarlo(ctx, req)
	if err != nil {
		return s.writeError(c, err)
	}
	png, err := chart.SimulationFan(resp.Result)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (s *Server) decode(ctx context.Context, c echo.Context, req any) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	return tools.Decode(ctx, body, req)
}

func readBody(c echo.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBody {
		return nil, domain.InvalidParameter("httpapi", "body", "exceeds %d bytes", maxBody)
	}
	return body, nil
}

// StatusFor maps an error onto an HTTP status: invalid input is 400,
// unknown tools 404, computations the data cannot support 422 and provider
// failures 503.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrNonPositiveDefinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c echo.Context, err error) error {
	status := StatusFor(err)
	kind := domain.KindName(err)
	if errors.Is(err, tools.ErrUnknownTool) {
		kind = "UnknownTool"
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, ErrorResponse{
		Error:   err.Error(),
		Kind:    kind,
		Subject: domain.Subject(err),
	})
}
