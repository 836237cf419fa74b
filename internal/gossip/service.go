// Package gossip shares each node's leadership claim over memberlist so
// split-brain detection can see the whole cluster without a central store.
package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

var _ port.ClusterStateProvider = (*Service)(nil)

// Options holds gossip protocol configuration
type Options struct {
	BindAddr       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// Service manages cluster membership and propagates this node's
// RaftNodeState in its memberlist metadata.
type Service struct {
	memberlist *memberlist.Memberlist
	election   port.LeaderElection
	nodeID     string
	logger     *zap.Logger

	mu         sync.Mutex
	advertised bool
}

// NewService joins the gossip cluster as nodeID
func NewService(opts Options, nodeID string, election port.LeaderElection, logger *zap.Logger) (*Service, error) {
	s := &Service{
		election: election,
		nodeID:   nodeID,
		logger:   logger,
	}
	s.advertised = election.IsLeaderElected()

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = nodeID
	if opts.BindAddr != "" {
		mlConfig.BindAddr = opts.BindAddr
		if ip := net.ParseIP(opts.BindAddr); ip == nil || !ip.IsUnspecified() {
			mlConfig.AdvertiseAddr = opts.BindAddr
		}
	}
	mlConfig.BindPort = opts.BindPort
	mlConfig.AdvertisePort = opts.BindPort
	if opts.GossipInterval > 0 {
		mlConfig.GossipInterval = opts.GossipInterval
	}
	if opts.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = opts.ProbeTimeout
	}
	if opts.ProbeInterval > 0 {
		mlConfig.ProbeInterval = opts.ProbeInterval
	}
	mlConfig.Delegate = s
	mlConfig.Events = &eventDelegate{logger: logger}
	mlConfig.Logger = zap.NewStdLog(logger.Named("memberlist"))

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	s.memberlist = ml

	if len(opts.SeedNodes) > 0 {
		if _, err := ml.Join(opts.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return s, nil
}

// Addr returns the address other nodes can join through
func (s *Service) Addr() string {
	n := s.memberlist.LocalNode()
	return fmt.Sprintf("%s:%d", n.Addr, n.Port)
}

// NodeMeta implements memberlist.Delegate
func (s *Service) NodeMeta(limit int) []byte {
	s.mu.Lock()
	isLeader := s.advertised
	s.mu.Unlock()

	data, _ := json.Marshal(model.RaftNodeState{NodeID: s.nodeID, IsLeader: isLeader})
	if len(data) > limit {
		s.logger.Warn("Node metadata exceeds limit", zap.Int("size", len(data)), zap.Int("limit", limit))
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (s *Service) NotifyMsg([]byte) {}

// GetBroadcasts implements memberlist.Delegate
func (s *Service) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (s *Service) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (s *Service) MergeRemoteState(buf []byte, join bool) {}

// Refresh re-reads leadership from the election and gossips it when it
// changed.
func (s *Service) Refresh(timeout time.Duration) error {
	isLeader := s.election.IsLeaderElected()

	s.mu.Lock()
	changed := isLeader != s.advertised
	s.advertised = isLeader
	s.mu.Unlock()

	if !changed {
		return nil
	}
	if err := s.memberlist.UpdateNode(timeout); err != nil {
		return fmt.Errorf("failed to gossip node update: %w", err)
	}
	s.logger.Info("Advertised leadership change", zap.Bool("is_leader", isLeader))
	return nil
}

// Run refreshes every interval until ctx is done
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(interval); err != nil {
				s.logger.Warn("Gossip refresh failed", zap.Error(err))
			}
		}
	}
}

// ClusterState implements port.ClusterStateProvider. The local node comes
// first, then members sorted by name. Members that are not alive or carry
// unreadable metadata are reported as not leader.
func (s *Service) ClusterState(ctx context.Context) (model.RaftClusterState, error) {
	if err := ctx.Err(); err != nil {
		return model.RaftClusterState{}, err
	}

	members := s.memberlist.Members()
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	nodes := make([]model.RaftNodeState, 0, len(members)+1)
	nodes = append(nodes, model.RaftNodeState{NodeID: s.nodeID, IsLeader: s.election.IsLeaderElected()})
	for _, m := range members {
		if m.Name == s.nodeID {
			continue
		}
		nodes = append(nodes, decodeMember(m))
	}
	return model.NewRaftClusterState(nodes)
}

func decodeMember(m *memberlist.Node) model.RaftNodeState {
	node := model.RaftNodeState{NodeID: m.Name}
	if m.State != memberlist.StateAlive {
		return node
	}
	var meta model.RaftNodeState
	if err := json.Unmarshal(m.Meta, &meta); err != nil {
		return node
	}
	node.IsLeader = meta.IsLeader
	return node
}

// Leave announces departure and shuts memberlist down
func (s *Service) Leave(timeout time.Duration) error {
	if err := s.memberlist.Leave(timeout); err != nil {
		s.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return s.memberlist.Shutdown()
}

// eventDelegate logs membership changes
type eventDelegate struct {
	logger *zap.Logger
}

// NotifyJoin is called when a node joins
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Addr.String()))
}

// NotifyLeave is called when a node leaves
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.logger.Info("Node left",
		zap.String("node_id", node.Name))
}

// NotifyUpdate is called when a node is updated
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.logger.Debug("Node updated",
		zap.String("node_id", node.Name))
}
