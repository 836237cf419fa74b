package model

// HealthStatus defines the health tier of a node
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// IsValid reports whether s is one of the closed set of tiers
func (s HealthStatus) IsValid() bool {
	switch s {
	case HealthStatusHealthy, HealthStatusDegraded, HealthStatusUnhealthy:
		return true
	default:
		return false
	}
}

func (s HealthStatus) String() string {
	return string(s)
}

// NodeState is the replication role a node currently holds
type NodeState string

const (
	NodeStatePrimary NodeState = "PRIMARY"
	NodeStateReplica NodeState = "REPLICA"
)

func (s NodeState) String() string {
	return string(s)
}

// LivenessResult is the outcome of a liveness probe
type LivenessResult struct {
	IsLive bool   `json:"is_live"`
	Error  string `json:"error,omitempty"`
}

// ReadinessResult is the outcome of a readiness probe
type ReadinessResult struct {
	IsReady            bool         `json:"is_ready"`
	CanAcceptWrites    bool         `json:"can_accept_writes"`
	HealthStatus       HealthStatus `json:"health_status"`
	SplitBrainDetected bool         `json:"split_brain_detected"`
	LeaderNodeIDs      []string     `json:"leader_node_ids,omitempty"`
	Error              string       `json:"error,omitempty"`
}
