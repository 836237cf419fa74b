// Package splitbrain detects more than one node claiming leadership.
package splitbrain

import (
	"context"
	"fmt"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"go.uber.org/zap"
)

// Detector counts leaders in a cluster snapshot
type Detector struct {
	provider port.ClusterStateProvider
	metrics  port.Metrics
	emitter  port.EventEmitter
	logger   *zap.Logger
}

// NewDetector creates a split-brain detector. metrics and emitter may be nil.
func NewDetector(
	provider port.ClusterStateProvider,
	metrics port.Metrics,
	emitter port.EventEmitter,
	logger *zap.Logger,
) *Detector {
	if metrics == nil {
		metrics = port.NoOpMetrics{}
	}
	if emitter == nil {
		emitter = port.NoOpEmitter{}
	}
	return &Detector{
		provider: provider,
		metrics:  metrics,
		emitter:  emitter,
		logger:   logger,
	}
}

// DetectSplitBrain reports split-brain when more than one node is leader.
// Leaders are returned in the order the provider supplied them. Zero leaders
// is not a split-brain.
func (d *Detector) DetectSplitBrain(ctx context.Context) (model.SplitBrainStatus, error) {
	state, err := d.provider.ClusterState(ctx)
	if err != nil {
		return model.SplitBrainStatus{}, fmt.Errorf("failed to get cluster state: %w", err)
	}

	leaders := state.LeaderNodes()
	status := model.SplitBrainStatus{
		IsSplitBrain: len(leaders) > 1,
		LeaderNodes:  leaders,
	}

	d.metrics.SetSplitBrainDetected(status.IsSplitBrain)
	if status.IsSplitBrain {
		d.logger.Error("Multiple leaders detected",
			zap.Strings("leader_node_ids", status.LeaderNodeIDs()),
			zap.Int("cluster_size", len(state.Nodes())))
		d.emitter.EmitSplitBrain(status)
	}
	return status, nil
}
