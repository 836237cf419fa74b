package port

import (
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
)

var (
	_ Metrics      = NoOpMetrics{}
	_ EventEmitter = NoOpEmitter{}
	_ Clock        = SystemClock{}
)

// NoOpMetrics discards every update
type NoOpMetrics struct{}

func (NoOpMetrics) SetNodeState(model.NodeState)       {}
func (NoOpMetrics) SetHealthStatus(model.HealthStatus) {}
func (NoOpMetrics) SetSplitBrainDetected(bool)         {}
func (NoOpMetrics) SetLeaderElected(bool)              {}

// NoOpEmitter discards every event
type NoOpEmitter struct{}

func (NoOpEmitter) EmitFailover(model.FailoverEvent)      {}
func (NoOpEmitter) EmitSplitBrain(model.SplitBrainStatus) {}

// SystemClock reads time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
