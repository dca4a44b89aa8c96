package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	shutdownTimeout = 5 * time.Second
	probeInterval   = 10 * time.Second
)

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	probe      Pinger
	log        logrus.FieldLogger
}

// Run starts the HTTP API and the gRPC health service and blocks until ctx is
// canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, probe Pinger, log logrus.FieldLogger) error {
	s := newServers(cfg, handler, probe, log)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	go s.watchHealth(probeCtx, probeInterval)

	log.WithFields(logrus.Fields{"http": cfg.HTTP.Address, "grpc": cfg.GRPC.Address}).Info("servers started")

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		_ = s.httpServer.Close()
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func newServers(cfg *config.Config, handler http.Handler, probe Pinger, log logrus.FieldLogger) *Servers {
	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		health: healthSrv,
		probe:  probe,
		log:    log,
	}
}

// watchHealth reports SERVING while the probe answers and NOT_SERVING
// otherwise. The empty service name covers the whole server.
func (s *Servers) watchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.checkHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Servers) checkHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.probe.Ping(pingCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.WithError(err).Warn("health probe failed")
		}
	}
	s.health.SetServingStatus("", status)
}

func (s *Servers) shutdown() error {
	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("servers stopped")
	return nil
}
