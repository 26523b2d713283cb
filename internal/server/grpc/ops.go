// Package grpcserver runs the operations listener: gRPC health checking
// backed by a store probe, plus optional server reflection.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the registry API.
const ServiceName = "pkgregistry.Registry"

// Pinger is satisfied by the store pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ops is the gRPC operations server.
type Ops struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// NewOps builds the ops server. Reflection is registered when reflect is set.
func NewOps(log *zap.Logger, reflect bool) *Ops {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	if reflect {
		reflection.Register(srv)
	}
	o := &Ops{srv: srv, health: h, log: log}
	o.SetServing(false)
	return o
}

// SetServing updates both the overall and the registry service status.
func (o *Ops) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}

// Watch probes p every interval and mirrors the result into the health
// status until ctx is done.
func (o *Ops) Watch(ctx context.Context, p Pinger, every time.Duration) {
	probe := func() bool {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			o.log.Warn("store ping failed", zap.Error(err))
			return false
		}
		return true
	}

	up := probe()
	o.SetServing(up)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if now := probe(); now != up {
				up = now
				o.SetServing(up)
				o.log.Info("health changed", zap.Bool("serving", up))
			}
		}
	}
}

// Serve accepts connections on lis until Stop.
func (o *Ops) Serve(lis net.Listener) error { return o.srv.Serve(lis) }

// Stop marks the server not serving and drains in-flight calls.
func (o *Ops) Stop() {
	o.health.Shutdown()
	o.srv.GracefulStop()
}
