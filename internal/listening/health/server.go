package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// Server provides HTTP endpoints and a gRPC health service for a session.
// A zero port disables the corresponding listener.
type Server struct {
	state    *State
	port     int
	grpcPort int

	mux        *http.ServeMux
	grpcHealth *grpchealth.Server
	log        *slog.Logger
}

// NewServer creates a new health server.
func NewServer(state *State, port, grpcPort int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		state:      state,
		port:       port,
		grpcPort:   grpcPort,
		mux:        http.NewServeMux(),
		grpcHealth: grpchealth.NewServer(),
		log:        log,
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Enabled reports whether any listener is configured.
func (s *Server) Enabled() bool {
	return s.port > 0 || s.grpcPort > 0
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetServing updates both the HTTP and the gRPC status.
func (s *Server) SetServing(serving bool) {
	status, grpcStatus := StatusNotServing, healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status, grpcStatus = StatusServing, healthpb.HealthCheckResponse_SERVING
	}
	s.state.set(status)
	s.grpcHealth.SetServingStatus("", grpcStatus)
	s.grpcHealth.SetServingStatus(string(s.state.chainID), grpcStatus)
}

// Check answers a gRPC health request without a network round trip.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.grpcHealth.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// Run serves until ctx is cancelled, then shuts the listeners down.
func (s *Server) Run(ctx context.Context) error {
	var lis net.Listener
	if s.grpcPort > 0 {
		var err error
		if lis, err = net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort)); err != nil {
			return fmt.Errorf("failed to listen on grpc port %d: %w", s.grpcPort, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.port > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", s.port),
			Handler:           s.mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.log.Info("Health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if lis != nil {
		gs := grpc.NewServer()
		healthpb.RegisterHealthServer(gs, s.grpcHealth)

		g.Go(func() error {
			s.log.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.grpcHealth.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.state.Report()
	w.Header().Set("Content-Type", "application/json")

	if report.Status == StatusServing {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(report)
}
