package election

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/devrev/litefs-sidecar/internal/config"
	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"go.uber.org/zap"
)

var _ port.RaftLeaderElection = (*RaftElection)(nil)

// RaftOptions configures a RaftElection. Node IDs are raft addresses.
type RaftOptions struct {
	Settings  *config.RaftSettings
	Policy    *config.QuorumPolicy
	BindAddr  string
	Bootstrap bool
	// SnapshotDir keeps raft snapshots on disk; empty discards them
	SnapshotDir string
}

// RaftElection runs a hashicorp/raft node used only for leader election.
// The replicated log carries no commands.
type RaftElection struct {
	raft      *raft.Raft
	transport raft.Transport
	settings  *config.RaftSettings
	policy    *config.QuorumPolicy
	logger    *zap.Logger
}

// NewRaftElection starts a raft node listening on opts.BindAddr
func NewRaftElection(opts RaftOptions, logger *zap.Logger) (*RaftElection, error) {
	hlog := newHCLogger(logger)

	advertise, err := net.ResolveTCPAddr("tcp", opts.Settings.NodeID())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve raft address %s: %w", opts.Settings.NodeID(), err)
	}
	bind := opts.BindAddr
	if bind == "" {
		bind = opts.Settings.NodeID()
	}
	transport, err := raft.NewTCPTransportWithLogger(bind, advertise, 3, 10*time.Second, hlog)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}

	e, err := newRaftElection(opts, transport, hlog, logger)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return e, nil
}

func newRaftElection(opts RaftOptions, transport raft.Transport, hlog hclog.Logger, logger *zap.Logger) (*RaftElection, error) {
	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.Settings.NodeID())
	conf.Logger = hlog
	conf.HeartbeatTimeout, conf.ElectionTimeout, conf.LeaderLeaseTimeout = raftTimeouts(opts.Policy)
	if err := raft.ValidateConfig(conf); err != nil {
		return nil, fmt.Errorf("invalid raft config: %w", err)
	}

	store := raft.NewInmemStore()
	var snapshots raft.SnapshotStore = raft.NewDiscardSnapshotStore()
	if opts.SnapshotDir != "" {
		fss, err := raft.NewFileSnapshotStoreWithLogger(opts.SnapshotDir, 1, hlog)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		snapshots = fss
	}

	r, err := raft.NewRaft(conf, electionFSM{}, store, store, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to start raft: %w", err)
	}

	if opts.Bootstrap {
		servers := make([]raft.Server, 0, opts.Settings.ClusterSize())
		for _, m := range opts.Settings.ClusterMembers() {
			servers = append(servers, raft.Server{
				ID:       raft.ServerID(m),
				Address:  raft.ServerAddress(m),
				Suffrage: raft.Voter,
			})
		}
		err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error()
		if err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			r.Shutdown()
			return nil, fmt.Errorf("failed to bootstrap raft cluster: %w", err)
		}
	}

	logger.Info("Raft election started",
		zap.String("node_id", opts.Settings.NodeID()),
		zap.Strings("members", opts.Settings.ClusterMembers()),
		zap.Int("quorum", opts.Settings.QuorumSize()))

	return &RaftElection{
		raft:      r,
		transport: transport,
		settings:  opts.Settings,
		policy:    opts.Policy,
		logger:    logger,
	}, nil
}

// raftTimeouts maps the policy onto raft's timers. A raft leader heartbeats
// every HeartbeatTimeout/10, so HeartbeatTimeout is ten heartbeat intervals,
// capped by the election timeout. The lease may not exceed HeartbeatTimeout.
func raftTimeouts(policy *config.QuorumPolicy) (heartbeat, election, lease time.Duration) {
	election = policy.ElectionTimeout()
	heartbeat = 10 * policy.HeartbeatInterval()
	if heartbeat > election {
		heartbeat = election
	}
	lease = election / 2
	if lease > heartbeat {
		lease = heartbeat
	}
	return heartbeat, election, lease
}

func (e *RaftElection) IsLeaderElected() bool {
	return e.raft.State() == raft.Leader
}

// ElectAsLeader succeeds when this node already leads. Raft leadership is
// won by election, so a follower cannot claim it.
func (e *RaftElection) ElectAsLeader() error {
	if e.IsLeaderElected() {
		return nil
	}
	_, leaderID := e.raft.LeaderWithID()
	return fmt.Errorf("node %s is %s; current leader is %q", e.settings.NodeID(), e.raft.State(), leaderID)
}

// DemoteFromLeader hands leadership to another voter. It is a no-op on
// followers.
func (e *RaftElection) DemoteFromLeader() error {
	if !e.IsLeaderElected() {
		return nil
	}
	if err := e.raft.LeadershipTransfer().Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return nil
		}
		return fmt.Errorf("leadership transfer failed: %w", err)
	}
	e.logger.Info("Leadership transferred", zap.String("node_id", e.settings.NodeID()))
	return nil
}

func (e *RaftElection) ClusterMembers() []string {
	return e.settings.ClusterMembers()
}

func (e *RaftElection) IsMemberInCluster(nodeID string) bool {
	for _, m := range e.settings.ClusterMembers() {
		if m == nodeID {
			return true
		}
	}
	return false
}

func (e *RaftElection) ElectionTimeout() time.Duration {
	return e.policy.ElectionTimeout()
}

func (e *RaftElection) HeartbeatInterval() time.Duration {
	return e.policy.HeartbeatInterval()
}

// IsQuorumReached reports whether this node is in contact with a majority.
// A raft leader steps down once its lease expires without quorum, so
// leading implies quorum; a follower needs a known leader heard from within
// the election timeout.
func (e *RaftElection) IsQuorumReached() bool {
	if e.IsLeaderElected() {
		return true
	}
	addr, _ := e.raft.LeaderWithID()
	if addr == "" {
		return false
	}
	return time.Since(e.raft.LastContact()) <= e.policy.ElectionTimeout()
}

// Leader returns the current leader's ID, empty when unknown
func (e *RaftElection) Leader() string {
	_, id := e.raft.LeaderWithID()
	return string(id)
}

// Shutdown stops the raft node and closes its transport
func (e *RaftElection) Shutdown() error {
	if err := e.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("failed to shut down raft: %w", err)
	}
	if c, ok := e.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// electionFSM applies nothing; raft is used only to agree on a leader
type electionFSM struct{}

func (electionFSM) Apply(*raft.Log) interface{} { return nil }

func (electionFSM) Snapshot() (raft.FSMSnapshot, error) { return emptySnapshot{}, nil }

func (electionFSM) Restore(rc io.ReadCloser) error { return rc.Close() }

type emptySnapshot struct{}

func (emptySnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }

func (emptySnapshot) Release() {}

// newHCLogger routes hashicorp library logs into zap
func newHCLogger(logger *zap.Logger) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Info,
		Output: zap.NewStdLog(logger.Named("raft")).Writer(),
	})
}
