package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Address: "127.0.0.1:0"},
		GRPC: config.GRPCConfig{Address: "127.0.0.1:0"},
	}
}

func servingStatus(t *testing.T, s *Servers) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCheckHealth(t *testing.T) {
	var probeErr error
	s := newServers(testConfig(), http.NotFoundHandler(), PingerFunc(func(context.Context) error { return probeErr }), quietLogger())

	s.checkHealth(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, s))

	probeErr = errors.New("db down")
	s.checkHealth(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, s))
}

func TestCheckHealthWithoutProbe(t *testing.T) {
	s := newServers(testConfig(), http.NotFoundHandler(), nil, quietLogger())
	s.checkHealth(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, s))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, testConfig(), http.NotFoundHandler(), nil, quietLogger())
	assert.NoError(t, err)
}

func TestRunFailsOnBadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.GRPC.Address = "256.0.0.1:bad"

	err := Run(context.Background(), cfg, http.NotFoundHandler(), nil, quietLogger())
	assert.Error(t, err)
}
