// Package api hosts the HTTP and gRPC listeners of the montewalk server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"montewalk/internal/config"
	"montewalk/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	log      zerolog.Logger

	mu      sync.Mutex
	httpLis net.Listener
	grpcLis net.Listener
}

// NewServer creates a Server configured from cfg. handler serves HTTP; the
// gRPC Analytics service is backed by svc. A zero gRPC port disables the
// gRPC listener.
func NewServer(cfg config.Server, handler http.Handler, svc *tools.Service, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	s := &Server{
		httpAddr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
	if cfg.GRPCPort > 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort))
		s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
		RegisterAnalyticsServer(s.grpc, NewAnalyticsService(svc))
	}
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.httpAddr, err)
	}
	var grpcLis net.Listener
	if s.grpc != nil {
		grpcLis, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
	}
	s.mu.Lock()
	s.httpLis, s.grpcLis = httpLis, grpcLis
	s.mu.Unlock()

	errc := make(chan error, 2)
	go func() {
		s.log.Info().Str("addr", httpLis.Addr().String()).Msg("http listening")
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("serve http: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			s.log.Info().Str("addr", grpcLis.Addr().String()).Msg("grpc listening")
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		s.shutdown()
		return err
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Addrs returns the bound HTTP and gRPC addresses once listening. The gRPC
// address is empty when gRPC is disabled.
func (s *Server) Addrs() (httpAddr, grpcAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLis != nil {
		httpAddr = s.httpLis.Addr().String()
	}
	if s.grpcLis != nil {
		grpcAddr = s.grpcLis.Addr().String()
	}
	return httpAddr, grpcAddr
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}
