package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/resilience"
)

// NodeStatus is what the coordinator exposes for /status
type NodeStatus interface {
	State() model.NodeState
	IsHealthy() bool
	Events() []model.FailoverEvent
}

// BreakerSource exposes the forwarding breaker
type BreakerSource interface {
	Breaker() resilience.CircuitBreaker
}

// StatusResponse is the body of /status
type StatusResponse struct {
	NodeID    string                `json:"node_id"`
	State     model.NodeState       `json:"state"`
	Healthy   bool                  `json:"healthy"`
	Events    []model.FailoverEvent `json:"events"`
	Breaker   *BreakerStatus        `json:"circuit_breaker,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// BreakerStatus describes the forwarding circuit breaker
type BreakerStatus struct {
	State        resilience.CircuitState `json:"state"`
	FailureCount int                     `json:"failure_count"`
	OpenedAt     *time.Time              `json:"opened_at,omitempty"`
}

// StatusHandler serves node state and recent failover history
type StatusHandler struct {
	nodeID  string
	node    NodeStatus
	breaker BreakerSource
}

// NewStatusHandler creates the handler; breaker may be nil when forwarding
// is not configured.
func NewStatusHandler(nodeID string, node NodeStatus, breaker BreakerSource) *StatusHandler {
	return &StatusHandler{nodeID: nodeID, node: node, breaker: breaker}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		NodeID:    h.nodeID,
		State:     h.node.State(),
		Healthy:   h.node.IsHealthy(),
		Events:    h.node.Events(),
		Timestamp: time.Now().Unix(),
	}
	if resp.Events == nil {
		resp.Events = []model.FailoverEvent{}
	}
	if h.breaker != nil {
		cb := h.breaker.Breaker()
		resp.Breaker = &BreakerStatus{
			State:        cb.State(),
			FailureCount: cb.FailureCount(),
		}
		if openedAt := cb.OpenedAt(); !openedAt.IsZero() {
			resp.Breaker.OpenedAt = &openedAt
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
