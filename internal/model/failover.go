package model

import "time"

// FailoverEventType classifies a failover transition
type FailoverEventType string

const (
	FailoverEventPromoted           FailoverEventType = "promoted"
	FailoverEventDemoted            FailoverEventType = "demoted"
	FailoverEventHealthDemotion     FailoverEventType = "health_demotion"
	FailoverEventQuorumLossDemotion FailoverEventType = "quorum_loss_demotion"
	FailoverEventGracefulHandoff    FailoverEventType = "graceful_handoff"
)

// FailoverEvent is an audit record of a state transition
type FailoverEvent struct {
	Type      FailoverEventType `json:"type"`
	Reason    string            `json:"reason"`
	From      NodeState         `json:"from"`
	To        NodeState         `json:"to"`
	Timestamp time.Time         `json:"timestamp"`
}
