// Package health composes node health, liveness and traffic readiness from
// the primary detector, the failover state and split-brain detection.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"go.uber.org/zap"
)

// HealthChecker evaluates this node's health tier
type HealthChecker struct {
	detector port.PrimaryDetector
	metrics  port.Metrics

	mu        sync.RWMutex
	degraded  bool
	unhealthy bool
	checks    []CheckResult
}

// NewHealthChecker creates a health checker; metrics may be nil
func NewHealthChecker(detector port.PrimaryDetector, metrics port.Metrics) *HealthChecker {
	if metrics == nil {
		metrics = port.NoOpMetrics{}
	}
	return &HealthChecker{detector: detector, metrics: metrics}
}

func (h *HealthChecker) SetDegraded(degraded bool) {
	h.mu.Lock()
	h.degraded = degraded
	h.mu.Unlock()
}

func (h *HealthChecker) SetUnhealthy(unhealthy bool) {
	h.mu.Lock()
	h.unhealthy = unhealthy
	h.mu.Unlock()
}

// ApplyChecks sets the tier flags from resource check results: any critical
// result marks the node unhealthy, any warning marks it degraded.
func (h *HealthChecker) ApplyChecks(results []CheckResult) {
	var degraded, unhealthy bool
	for _, r := range results {
		switch r.Status {
		case CheckCritical:
			unhealthy = true
		case CheckWarning:
			degraded = true
		}
	}

	h.mu.Lock()
	h.degraded = degraded
	h.unhealthy = unhealthy
	h.checks = append([]CheckResult(nil), results...)
	h.mu.Unlock()
}

// Checks returns the results last passed to ApplyChecks
func (h *HealthChecker) Checks() []CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]CheckResult(nil), h.checks...)
}

// CheckHealth returns unhealthy if flagged, else degraded if flagged, else
// healthy. The detector is always consulted so a missing mount surfaces as
// a LiteFSNotRunning error; its answer does not change the tier.
func (h *HealthChecker) CheckHealth() (model.HealthStatus, error) {
	if _, err := h.detector.IsPrimary(); err != nil {
		h.metrics.SetHealthStatus(model.HealthStatusUnhealthy)
		return model.HealthStatusUnhealthy, err
	}

	h.mu.RLock()
	status := model.HealthStatusHealthy
	switch {
	case h.unhealthy:
		status = model.HealthStatusUnhealthy
	case h.degraded:
		status = model.HealthStatusDegraded
	}
	h.mu.RUnlock()

	h.metrics.SetHealthStatus(status)
	return status, nil
}

// LivenessChecker answers whether the LiteFS mount is reachable at all
type LivenessChecker struct {
	detector port.PrimaryDetector
}

func NewLivenessChecker(detector port.PrimaryDetector) *LivenessChecker {
	return &LivenessChecker{detector: detector}
}

// CheckLiveness is live whenever the detector answers. LiteFSNotRunning
// becomes a not-live result; other errors are returned.
func (l *LivenessChecker) CheckLiveness() (model.LivenessResult, error) {
	if _, err := l.detector.IsPrimary(); err != nil {
		if sidecarerrors.IsLiteFSNotRunning(err) {
			return model.LivenessResult{IsLive: false, Error: err.Error()}, nil
		}
		return model.LivenessResult{}, err
	}
	return model.LivenessResult{IsLive: true}, nil
}

// NodeStateSource reports PRIMARY or REPLICA
type NodeStateSource interface {
	State() model.NodeState
}

// SplitBrainSource reports whether more than one leader exists
type SplitBrainSource interface {
	DetectSplitBrain(ctx context.Context) (model.SplitBrainStatus, error)
}

// ReadinessChecker decides whether this node should receive traffic
type ReadinessChecker struct {
	health     *HealthChecker
	state      NodeStateSource
	splitBrain SplitBrainSource
	logger     *zap.Logger
}

// NewReadinessChecker composes the checks; splitBrain may be nil
func NewReadinessChecker(
	health *HealthChecker,
	state NodeStateSource,
	splitBrain SplitBrainSource,
	logger *zap.Logger,
) *ReadinessChecker {
	return &ReadinessChecker{
		health:     health,
		state:      state,
		splitBrain: splitBrain,
		logger:     logger,
	}
}

// CheckReadiness is ready when health is healthy and no split-brain is
// detected. Writes are accepted only by a ready PRIMARY. Split-brain
// detection failures are logged and ignored.
func (r *ReadinessChecker) CheckReadiness(ctx context.Context) model.ReadinessResult {
	var reasons []string

	status, err := r.health.CheckHealth()
	if err != nil {
		if !sidecarerrors.IsLiteFSNotRunning(err) {
			r.logger.Error("Health check failed", zap.Error(err))
		}
		return model.ReadinessResult{
			IsReady:      false,
			HealthStatus: model.HealthStatusUnhealthy,
			Error:        err.Error(),
		}
	}

	result := model.ReadinessResult{HealthStatus: status}
	ready := status == model.HealthStatusHealthy
	if !ready {
		reasons = append(reasons, fmt.Sprintf("health status is %s", status))
	}

	if r.splitBrain != nil {
		sb, err := r.splitBrain.DetectSplitBrain(ctx)
		switch {
		case err != nil:
			r.logger.Warn("Split-brain detection failed, assuming none", zap.Error(err))
		case sb.IsSplitBrain:
			ready = false
			result.SplitBrainDetected = true
			result.LeaderNodeIDs = sb.LeaderNodeIDs()
			reasons = append(reasons, fmt.Sprintf("split-brain detected: multiple leaders [%s]",
				strings.Join(result.LeaderNodeIDs, ", ")))
		}
	}

	result.IsReady = ready
	result.CanAcceptWrites = ready && r.state.State() == model.NodeStatePrimary
	if !ready {
		result.Error = strings.Join(reasons, "; ")
	}
	return result
}
