package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WriterService is the gRPC health service name that is SERVING only while
// this node can accept writes. The empty service name follows readiness.
const WriterService = "litefs.writer"

// GRPCServer publishes readiness through the standard grpc.health.v1 service
type GRPCServer struct {
	readiness *ReadinessChecker
	health    *grpchealth.Server
	server    *grpc.Server
	logger    *zap.Logger
}

// NewGRPCServer creates the server with both services NOT_SERVING
func NewGRPCServer(readiness *ReadinessChecker, logger *zap.Logger) *GRPCServer {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(WriterService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		readiness: readiness,
		health:    hs,
		server:    srv,
		logger:    logger,
	}
}

// HealthServer exposes the underlying health service
func (g *GRPCServer) HealthServer() healthpb.HealthServer {
	return g.health
}

// Sync evaluates readiness once and updates both serving statuses
func (g *GRPCServer) Sync(ctx context.Context) {
	result := g.readiness.CheckReadiness(ctx)
	g.health.SetServingStatus("", servingStatus(result.IsReady))
	g.health.SetServingStatus(WriterService, servingStatus(result.CanAcceptWrites))
}

// Run re-syncs every interval until ctx is done
func (g *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.Sync(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sync(ctx)
		}
	}
}

// Serve listens on addr until Stop is called
func (g *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	g.logger.Info("Starting gRPC health server", zap.String("address", addr))
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
