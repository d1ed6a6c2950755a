package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for cart storage.
const ServiceName = "storefront.cart"

const (
	DefaultCheckInterval = 10 * time.Second
	checkTimeout         = 2 * time.Second
)

// Pinger is satisfied by every storage.BlobStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter checks cart storage and publishes the result on a gRPC health server.
type HealthReporter struct {
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	serving bool
}

func NewHealthReporter(p Pinger, interval time.Duration, log *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		health:   hs,
		pinger:   p,
		interval: interval,
		log:      logger.OrNop(log),
	}
}

func (r *HealthReporter) Server() *health.Server {
	return r.health
}

// Check pings storage once and updates the serving status.
func (r *HealthReporter) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := r.pinger.Ping(ctx)
	serving := err == nil

	r.mu.Lock()
	changed := serving != r.serving
	r.serving = serving
	r.mu.Unlock()

	if serving {
		r.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	} else {
		r.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		if serving {
			r.log.Info("cart storage is healthy")
		} else {
			r.log.Warn("cart storage is unhealthy", zap.Error(err))
		}
	}
	return serving
}

// Run checks storage until ctx is done, then marks every service NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// NewServer returns a traced gRPC server exposing hs and server reflection.
func NewServer(hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(s)
	return s
}
