package port

import (
	"github.com/devrev/litefs-sidecar/internal/model"
	"go.uber.org/zap"
)

// LogEmitter writes events to a zap logger
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates an emitter that logs every event
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// EmitFailover implements EventEmitter
func (e *LogEmitter) EmitFailover(event model.FailoverEvent) {
	e.logger.Info("Failover event",
		zap.String("type", string(event.Type)),
		zap.String("from", event.From.String()),
		zap.String("to", event.To.String()),
		zap.String("reason", event.Reason))
}

// EmitSplitBrain implements EventEmitter
func (e *LogEmitter) EmitSplitBrain(status model.SplitBrainStatus) {
	if !status.IsSplitBrain {
		return
	}
	e.logger.Error("Split-brain detected",
		zap.Strings("leader_node_ids", status.LeaderNodeIDs()))
}

// MultiEmitter fans events out to several emitters in order
type MultiEmitter []EventEmitter

// EmitFailover implements EventEmitter
func (m MultiEmitter) EmitFailover(event model.FailoverEvent) {
	for _, e := range m {
		e.EmitFailover(event)
	}
}

// EmitSplitBrain implements EventEmitter
func (m MultiEmitter) EmitSplitBrain(status model.SplitBrainStatus) {
	for _, e := range m {
		e.EmitSplitBrain(status)
	}
}
