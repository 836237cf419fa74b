package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/devrev/litefs-sidecar/internal/config"
	"github.com/devrev/litefs-sidecar/internal/election"
	"github.com/devrev/litefs-sidecar/internal/failover"
	"github.com/devrev/litefs-sidecar/internal/forward"
	"github.com/devrev/litefs-sidecar/internal/gossip"
	"github.com/devrev/litefs-sidecar/internal/health"
	"github.com/devrev/litefs-sidecar/internal/metrics"
	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/devrev/litefs-sidecar/internal/primary"
	"github.com/devrev/litefs-sidecar/internal/server"
	"github.com/devrev/litefs-sidecar/internal/splitbrain"
	"github.com/devrev/litefs-sidecar/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// idempotencyCacheSize bounds the in-memory store used without Redis
const idempotencyCacheSize = 10000

// app holds the wired components of a running sidecar
type app struct {
	cfg      *config.Config
	settings *config.LiteFSSettings
	nodeID   string
	logger   *zap.Logger

	election    port.LeaderElection
	static      *election.StaticElection
	raft        *election.RaftElection
	coordinator *failover.Coordinator
	detector    port.PrimaryDetector
	cache       *primary.CachedDetector
	health      *health.HealthChecker
	resources   *health.ResourceChecker
	splitBrain  *splitbrain.Detector
	gossip      *gossip.Service
	idempotency store.IdempotencyStore
	grpc        *health.GRPCServer
	http        *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	settings, err := cfg.LiteFSSettings()
	if err != nil {
		return nil, err
	}

	nodeID, err := primary.FirstNodeID{
		primary.StaticNodeID(cfg.Server.NodeID),
		primary.EnvNodeID("HOSTNAME"),
		primary.HostnameNodeID{},
	}.ResolveNodeID()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		settings: settings,
		nodeID:   nodeID,
		logger:   logger.With(zap.String("node_id", nodeID)),
	}
	a.logger.Info("starting LiteFS sidecar",
		zap.String("mount_path", settings.MountPath),
		zap.String("leader_election", string(settings.LeaderElection)))

	if cfg.LiteFS.ConfigOutput != "" {
		if err := config.WriteLiteFSConfig(cfg.LiteFS.ConfigOutput, settings, nodeID); err != nil {
			return nil, err
		}
		a.logger.Info("litefs config written", zap.String("path", cfg.LiteFS.ConfigOutput))
	}

	var (
		m        port.Metrics = port.NoOpMetrics{}
		recorder forward.Recorder
		httpRec  server.HTTPRecorder
		handler  http.Handler
		emitter  = port.MultiEmitter{port.NewLogEmitter(a.logger)}
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		pm := metrics.NewMetrics(reg)
		m, recorder, httpRec, handler = pm, pm, pm, metrics.Handler(reg)
		emitter = append(emitter, pm)
	}

	if err := a.setupElection(); err != nil {
		a.Close()
		return nil, err
	}

	a.detector = primary.NewDetector(settings.MountPath)
	if cfg.Server.PrimaryCacheTTL > 0 {
		a.cache = primary.NewCachedDetector(a.detector, cfg.Server.PrimaryCacheTTL, port.SystemClock{})
		a.detector = a.cache
	}

	a.coordinator = failover.NewCoordinator(a.election, m, emitter, port.SystemClock{}, a.logger)
	a.health = health.NewHealthChecker(a.detector, m)
	a.resources = health.NewResourceChecker(health.ResourceOptions{
		DataDir:             settings.DataPath,
		CheckDataDir:        cfg.Health.CheckDataDir,
		DiskWarningPercent:  cfg.Health.DiskWarningPercent,
		DiskCriticalPercent: cfg.Health.DiskCriticalPercent,
	}, a.logger)

	peers := splitbrain.NewPeerClusterState(nodeID, a.election, cfg.SplitBrain.PeerURLs, cfg.SplitBrain.PeerTimeout, a.logger)
	if cfg.Gossip.Enabled {
		a.gossip, err = gossip.NewService(gossip.Options{
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, nodeID, a.election, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var sbSource health.SplitBrainSource
	if cfg.SplitBrain.Enabled {
		var provider port.ClusterStateProvider = peers
		if cfg.SplitBrain.Source == "gossip" {
			provider = a.gossip
		}
		a.splitBrain = splitbrain.NewDetector(provider, m, emitter, a.logger)
		sbSource = a.splitBrain
	}

	readiness := health.NewReadinessChecker(a.health, a.coordinator, sbSource, a.logger)
	if cfg.Server.GRPCPort > 0 {
		a.grpc = health.NewGRPCServer(readiness, a.logger)
	}

	routes := server.Routes{
		Health:  health.NewHandlers(a.health, health.NewLivenessChecker(a.detector), readiness, a.logger),
		Node:    peers.NodeHandler,
		Metrics: handler,
	}

	fwd, err := a.setupForwarding(ctx, recorder)
	if err != nil {
		a.Close()
		return nil, err
	}
	routes.Status = server.NewStatusHandler(nodeID, a.coordinator, nil)
	if fwd != nil {
		routes.Status = server.NewStatusHandler(nodeID, a.coordinator, fwd)
		routes.Forwarding = forward.NewMiddleware(fwd,
			settings.Forwarding.RequestsPerSecond, settings.Forwarding.BurstSize, a.logger)
	}
	if settings.ProxyAddr != "" {
		routes.Upstream, err = server.NewUpstreamProxy(settings.ProxyAddr, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.http = server.NewServer(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}, routes, httpRec, a.logger)

	return a, nil
}

// setupElection selects the static or raft election. Static mode also
// brings the primary marker in line with the configuration.
func (a *app) setupElection() error {
	switch a.settings.LeaderElection {
	case config.LeaderElectionStatic:
		initializer := primary.NewInitializer(a.settings.Static)
		marker := primary.NewMarkerWriter(a.settings.MountPath)
		if _, err := primary.Bootstrap(initializer, marker, a.nodeID, a.logger); err != nil {
			return fmt.Errorf("failed to bootstrap primary marker: %w", err)
		}
		a.static = election.NewStaticElection(initializer, marker, a.nodeID, a.logger)
		a.election = a.static
		return nil

	case config.LeaderElectionRaft:
		policy, err := a.cfg.QuorumPolicy()
		if err != nil {
			return err
		}
		r, err := election.NewRaftElection(election.RaftOptions{
			Settings:    a.settings.Raft,
			Policy:      policy,
			Bootstrap:   a.cfg.Raft.Bootstrap,
			SnapshotDir: a.cfg.Raft.DataDir,
		}, a.logger)
		if err != nil {
			return err
		}
		a.raft = r
		a.election = r
		return nil

	default:
		return fmt.Errorf("unsupported leader election mode %q", a.settings.LeaderElection)
	}
}

// setupForwarding builds the write-forwarding service and its idempotency
// store. It returns nil when there is no upstream to forward around.
func (a *app) setupForwarding(ctx context.Context, recorder forward.Recorder) (*forward.Service, error) {
	if a.settings.ProxyAddr == "" || a.settings.Forwarding == nil {
		return nil, nil
	}
	fs := a.settings.Forwarding

	if a.cfg.Redis.Enabled {
		rs, err := store.NewRedisIdempotencyStore(ctx,
			a.cfg.Redis.Host, a.cfg.Redis.Port, a.cfg.Redis.Password, a.cfg.Redis.DB, a.logger)
		if err != nil {
			return nil, err
		}
		a.idempotency = rs
	} else {
		a.idempotency = store.NewMemoryIdempotencyStore(idempotencyCacheSize, port.SystemClock{})
	}

	resolver := primary.NewURLResolver(fs, primary.NewURLDetector(a.settings.MountPath, a.nodeID))
	return forward.NewService(
		fs,
		a.detector,
		resolver,
		forward.NewHTTPForwarder(fs.Timeout, a.nodeID, a.logger),
		a.idempotency,
		recorder,
		port.SystemClock{},
		a.logger,
	)
}

// Run serves until ctx is cancelled, then shuts the servers down.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.http.Start()
	})

	if a.grpc != nil {
		g.Go(func() error {
			addr := net.JoinHostPort(a.cfg.Server.Host, fmt.Sprint(a.cfg.Server.GRPCPort))
			if err := a.grpc.Serve(addr); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			a.grpc.Run(ctx, a.cfg.Server.PollInterval)
			return nil
		})
	}

	if a.gossip != nil {
		g.Go(func() error {
			a.gossip.Run(ctx, a.cfg.Gossip.GossipInterval)
			return nil
		})
	}

	g.Go(func() error {
		a.poll(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if a.grpc != nil {
			a.grpc.Stop()
		}
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// poll drives the failover coordinator on the configured interval.
func (a *app) poll(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Server.PollInterval)
	defer ticker.Stop()

	for {
		a.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) tick(ctx context.Context) {
	a.health.ApplyChecks(a.resources.Run())
	status, err := a.health.CheckHealth()
	if err != nil || status == model.HealthStatusUnhealthy {
		a.coordinator.MarkUnhealthy()
	} else {
		a.coordinator.MarkHealthy()
	}

	// a demoted static primary takes the marker back once healthy
	if a.static != nil && a.static.IsDesignated() {
		if event, err := a.coordinator.AttemptPromotion(); err != nil {
			a.logger.Warn("Failed to reclaim static leadership", zap.Error(err))
		} else if event != nil {
			a.invalidatePrimaryCache()
		}
	}

	if event := a.coordinator.CoordinateTransition(); event != nil {
		a.invalidatePrimaryCache()
	}
	if event, err := a.coordinator.StepDownIfRequired(); err != nil {
		a.logger.Warn("Step-down failed", zap.Error(err))
	} else if event != nil {
		a.invalidatePrimaryCache()
	}

	if a.splitBrain != nil {
		probeCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.PollInterval)
		if _, err := a.splitBrain.DetectSplitBrain(probeCtx); err != nil {
			a.logger.Debug("Split-brain probe failed", zap.Error(err))
		}
		cancel()
	}
}

func (a *app) invalidatePrimaryCache() {
	if a.cache != nil {
		a.cache.Invalidate()
	}
}

// Close releases election, gossip and store resources. A raft primary hands
// leadership off first; a static primary keeps its marker.
func (a *app) Close() {
	if a.raft != nil && a.coordinator != nil && a.coordinator.IsPrimary() {
		if err := a.coordinator.PerformGracefulHandoff(); err != nil {
			a.logger.Warn("Graceful handoff failed", zap.Error(err))
		}
	}
	if a.gossip != nil {
		if err := a.gossip.Leave(5 * time.Second); err != nil {
			a.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
		}
	}
	if a.raft != nil {
		if err := a.raft.Shutdown(); err != nil {
			a.logger.Warn("Failed to shut down raft", zap.Error(err))
		}
	}
	if a.idempotency != nil {
		a.idempotency.Close()
	}
}
