// Package failover tracks whether this node is PRIMARY or REPLICA and decides
// when it should give up leadership. Transitions are driven by explicit
// polling calls from the host.
package failover

import (
	"fmt"
	"sync"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"go.uber.org/zap"
)

const defaultHistorySize = 100

// quorumReporter is the part of port.RaftLeaderElection the gates need
type quorumReporter interface {
	IsQuorumReached() bool
}

// Coordinator is the node's PRIMARY/REPLICA state machine
type Coordinator struct {
	election port.LeaderElection
	quorum   quorumReporter
	metrics  port.Metrics
	emitter  port.EventEmitter
	clock    port.Clock
	logger   *zap.Logger

	mu          sync.RWMutex
	state       model.NodeState
	healthy     bool
	history     []model.FailoverEvent
	historySize int
}

// NewCoordinator creates a coordinator whose initial state follows the
// election. Elections that also report quorum (port.RaftLeaderElection) gate
// leadership on it. metrics, emitter and clock may be nil.
func NewCoordinator(
	election port.LeaderElection,
	metrics port.Metrics,
	emitter port.EventEmitter,
	clock port.Clock,
	logger *zap.Logger,
) *Coordinator {
	if metrics == nil {
		metrics = port.NoOpMetrics{}
	}
	if emitter == nil {
		emitter = port.NoOpEmitter{}
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	c := &Coordinator{
		election:    election,
		metrics:     metrics,
		emitter:     emitter,
		clock:       clock,
		logger:      logger,
		state:       model.NodeStateReplica,
		healthy:     true,
		historySize: defaultHistorySize,
	}
	if q, ok := election.(quorumReporter); ok {
		c.quorum = q
	}

	elected := election.IsLeaderElected()
	if elected {
		c.state = model.NodeStatePrimary
	}
	metrics.SetNodeState(c.state)
	metrics.SetLeaderElected(elected)

	logger.Info("Failover coordinator initialized",
		zap.String("state", c.state.String()),
		zap.Bool("quorum_aware", c.quorum != nil))
	return c
}

// State returns the current node state
func (c *Coordinator) State() model.NodeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsPrimary reports whether the node is currently PRIMARY
func (c *Coordinator) IsPrimary() bool {
	return c.State() == model.NodeStatePrimary
}

// IsHealthy returns the health flag set by MarkHealthy/MarkUnhealthy
func (c *Coordinator) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Coordinator) MarkHealthy() {
	c.mu.Lock()
	c.healthy = true
	c.mu.Unlock()
}

func (c *Coordinator) MarkUnhealthy() {
	c.mu.Lock()
	c.healthy = false
	c.mu.Unlock()
}

// CoordinateTransition moves the node to match the election result. Repeated
// calls without an election change are no-ops. It returns the event when a
// transition happened.
func (c *Coordinator) CoordinateTransition() *model.FailoverEvent {
	elected := c.election.IsLeaderElected()

	c.mu.Lock()
	var event *model.FailoverEvent
	switch {
	case elected && c.state == model.NodeStateReplica:
		event = c.transitionLocked(model.NodeStatePrimary, model.FailoverEventPromoted, "elected as leader")
	case !elected && c.state == model.NodeStatePrimary:
		event = c.transitionLocked(model.NodeStateReplica, model.FailoverEventDemoted, "leadership lost")
	}
	c.mu.Unlock()

	c.metrics.SetLeaderElected(elected)
	c.publish(event)
	return event
}

// AttemptPromotion asks the election to make this REPLICA the leader once it
// can become one again. It returns the promotion event, if any.
func (c *Coordinator) AttemptPromotion() (*model.FailoverEvent, error) {
	if c.IsPrimary() || c.election.IsLeaderElected() || !c.CanBecomeLeader() {
		return nil, nil
	}
	if err := c.election.ElectAsLeader(); err != nil {
		return nil, fmt.Errorf("failed to claim leadership: %w", err)
	}
	c.logger.Info("Claimed leadership")
	return c.CoordinateTransition(), nil
}

// CanBecomeLeader reports whether the node is healthy and, when the election
// is quorum aware, quorum is reached.
func (c *Coordinator) CanBecomeLeader() bool {
	return c.IsHealthy() && c.quorumHolds()
}

// CanMaintainLeadership reports whether the node is elected, healthy and
// quorum holds.
func (c *Coordinator) CanMaintainLeadership() bool {
	return c.election.IsLeaderElected() && c.IsHealthy() && c.quorumHolds()
}

// ShouldMaintainLeadership is true only for a PRIMARY that can maintain
// leadership.
func (c *Coordinator) ShouldMaintainLeadership() bool {
	return c.IsPrimary() && c.CanMaintainLeadership()
}

// PerformGracefulHandoff demotes a PRIMARY through the election and forces
// REPLICA. The state changes even when the demotion call fails; the error is
// returned.
func (c *Coordinator) PerformGracefulHandoff() error {
	if !c.IsPrimary() {
		return nil
	}

	demoteErr := c.election.DemoteFromLeader()

	c.mu.Lock()
	var event *model.FailoverEvent
	if c.state == model.NodeStatePrimary {
		event = c.transitionLocked(model.NodeStateReplica, model.FailoverEventGracefulHandoff, "graceful handoff requested")
	}
	c.mu.Unlock()

	c.publish(event)
	if demoteErr != nil {
		return fmt.Errorf("failed to demote from leader: %w", demoteErr)
	}
	return nil
}

// StepDownIfRequired demotes a PRIMARY that is still elected but has become
// unhealthy or lost quorum. A lost election is left to CoordinateTransition.
func (c *Coordinator) StepDownIfRequired() (*model.FailoverEvent, error) {
	if !c.IsPrimary() || !c.election.IsLeaderElected() {
		return nil, nil
	}

	var (
		eventType model.FailoverEventType
		reason    string
	)
	switch {
	case !c.IsHealthy():
		eventType, reason = model.FailoverEventHealthDemotion, "node is unhealthy"
	case !c.quorumHolds():
		eventType, reason = model.FailoverEventQuorumLossDemotion, "quorum lost"
	default:
		return nil, nil
	}

	c.logger.Warn("Stepping down from leadership", zap.String("reason", reason))
	if err := c.election.DemoteFromLeader(); err != nil {
		return nil, fmt.Errorf("failed to step down: %w", err)
	}

	c.mu.Lock()
	var event *model.FailoverEvent
	if c.state == model.NodeStatePrimary {
		event = c.transitionLocked(model.NodeStateReplica, eventType, reason)
	}
	c.mu.Unlock()

	c.publish(event)
	return event, nil
}

// Events returns the recorded transitions, oldest first
func (c *Coordinator) Events() []model.FailoverEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.FailoverEvent(nil), c.history...)
}

func (c *Coordinator) quorumHolds() bool {
	return c.quorum == nil || c.quorum.IsQuorumReached()
}

// transitionLocked requires c.mu held for writing
func (c *Coordinator) transitionLocked(to model.NodeState, eventType model.FailoverEventType, reason string) *model.FailoverEvent {
	event := model.FailoverEvent{
		Type:      eventType,
		Reason:    reason,
		From:      c.state,
		To:        to,
		Timestamp: c.clock.Now(),
	}
	c.state = to

	c.history = append(c.history, event)
	if len(c.history) > c.historySize {
		c.history = c.history[len(c.history)-c.historySize:]
	}
	return &event
}

func (c *Coordinator) publish(event *model.FailoverEvent) {
	if event == nil {
		return
	}
	c.logger.Info("Node state changed",
		zap.String("event", string(event.Type)),
		zap.String("from", event.From.String()),
		zap.String("to", event.To.String()),
		zap.String("reason", event.Reason))
	c.metrics.SetNodeState(event.To)
	c.emitter.EmitFailover(*event)
}
