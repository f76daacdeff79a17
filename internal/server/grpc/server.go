// Package grpc runs the gRPC health service of the backend. Clients probe
// it to decide whether they are online.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports whether a dependency (the database) is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthServer struct {
	address  string
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   logging.Logger
}

// NewHealthServer serves SERVING for common.HealthServiceName. With a
// pinger, the status follows the pinger every interval.
func NewHealthServer(addr string, pinger Pinger, interval time.Duration, l logging.Logger) *HealthServer {
	if l == nil {
		l = logging.Nop()
	}
	return &HealthServer{
		address:  addr,
		health:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		logger:   l.With("module", "grpc_health"),
	}
}

// Check updates the status from the pinger once.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.pinger.PingContext(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "dependency check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(common.HealthServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

func (s *HealthServer) watch(ctx context.Context) {
	if s.pinger == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	s.Check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !(errors.Is(err, grpc.ErrServerStopped) && ctx.Err() != nil) {
		return err
	}
	return nil
}
