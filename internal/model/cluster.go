package model

import (
	"errors"
	"strings"
)

// RaftNodeState is the role one cluster member claims
type RaftNodeState struct {
	NodeID   string `json:"node_id"`
	IsLeader bool   `json:"is_leader"`
}

// NewRaftNodeState validates and returns a node state
func NewRaftNodeState(nodeID string, isLeader bool) (RaftNodeState, error) {
	if strings.TrimSpace(nodeID) == "" {
		return RaftNodeState{}, errors.New("node_id must not be blank")
	}
	return RaftNodeState{NodeID: nodeID, IsLeader: isLeader}, nil
}

// RaftClusterState is a snapshot of every member's claimed role.
// The node list is copied on construction and on access.
type RaftClusterState struct {
	nodes []RaftNodeState
}

// NewRaftClusterState builds a snapshot from a non-empty node list
func NewRaftClusterState(nodes []RaftNodeState) (RaftClusterState, error) {
	if len(nodes) == 0 {
		return RaftClusterState{}, errors.New("cluster state requires at least one node")
	}
	for _, n := range nodes {
		if strings.TrimSpace(n.NodeID) == "" {
			return RaftClusterState{}, errors.New("node_id must not be blank")
		}
	}
	cp := make([]RaftNodeState, len(nodes))
	copy(cp, nodes)
	return RaftClusterState{nodes: cp}, nil
}

// Nodes returns the members in the order they were supplied
func (c RaftClusterState) Nodes() []RaftNodeState {
	cp := make([]RaftNodeState, len(c.nodes))
	copy(cp, c.nodes)
	return cp
}

// CountLeaders returns the number of members claiming leadership
func (c RaftClusterState) CountLeaders() int {
	count := 0
	for _, n := range c.nodes {
		if n.IsLeader {
			count++
		}
	}
	return count
}

// HasSingleLeader reports whether exactly one member claims leadership
func (c RaftClusterState) HasSingleLeader() bool {
	return c.CountLeaders() == 1
}

// LeaderNodes returns the members claiming leadership, in order
func (c RaftClusterState) LeaderNodes() []RaftNodeState {
	leaders := make([]RaftNodeState, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.IsLeader {
			leaders = append(leaders, n)
		}
	}
	return leaders
}

// ReplicaNodes returns the members not claiming leadership, in order
func (c RaftClusterState) ReplicaNodes() []RaftNodeState {
	replicas := make([]RaftNodeState, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !n.IsLeader {
			replicas = append(replicas, n)
		}
	}
	return replicas
}

// SplitBrainStatus is the result of a split-brain check
type SplitBrainStatus struct {
	IsSplitBrain bool
	LeaderNodes  []RaftNodeState
}

// LeaderNodeIDs returns the IDs of the reported leaders
func (s SplitBrainStatus) LeaderNodeIDs() []string {
	ids := make([]string, 0, len(s.LeaderNodes))
	for _, n := range s.LeaderNodes {
		ids = append(ids, n.NodeID)
	}
	return ids
}
