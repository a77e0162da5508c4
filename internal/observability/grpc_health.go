package observability

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCHealthServer builds a gRPC server exposing the standard health
// service. The overall service ("") and each named dependency start as
// NOT_SERVING until the first readiness pass.
func NewGRPCHealthServer(checks []NamedCheck) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range checks {
		hs.SetServingStatus(c.Name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return srv, hs
}

// UpdateGRPCHealth runs the readiness checks once and mirrors them into hs
func UpdateGRPCHealth(ctx context.Context, hs *health.Server, checks []NamedCheck) bool {
	deps, ok := RunChecks(ctx, checks)
	for name, dep := range deps {
		hs.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	hs.SetServingStatus("", servingStatus(ok))
	return ok
}

// WatchGRPCHealth refreshes hs every interval until ctx is done, then marks
// everything NOT_SERVING.
func WatchGRPCHealth(ctx context.Context, hs *health.Server, checks []NamedCheck, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		UpdateGRPCHealth(checkCtx, hs, checks)
		cancel()

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
