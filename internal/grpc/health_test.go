package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type switchPinger struct {
	mu  sync.Mutex
	err error
}

func (p *switchPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *switchPinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func status(t *testing.T, r *HealthReporter) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthReporter_Check(t *testing.T) {
	pinger := &switchPinger{}
	r := NewHealthReporter(pinger, time.Minute, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, r))

	assert.True(t, r.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, r))

	pinger.set(errors.New("connection refused"))
	assert.False(t, r.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, r))
}

func TestHealthReporter_RunStopsOnCancel(t *testing.T) {
	r := NewHealthReporter(&switchPinger{}, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return status(t, r) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, r))
}

func TestNewServer_ServesHealth(t *testing.T) {
	r := NewHealthReporter(&switchPinger{}, time.Minute, nil)
	r.Check(context.Background())

	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(r.Server())
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
