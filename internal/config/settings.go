package config

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
)

// LeaderElectionMode selects how the primary is chosen
type LeaderElectionMode string

const (
	LeaderElectionStatic LeaderElectionMode = "static"
	LeaderElectionRaft   LeaderElectionMode = "raft"
)

// LiteFSSettings is the validated runtime configuration of the sidecar.
// Build it with NewLiteFSSettings; treat the result as read-only.
type LiteFSSettings struct {
	MountPath      string
	DataPath       string
	DatabaseName   string
	LeaderElection LeaderElectionMode
	ProxyAddr      string
	Enabled        bool
	Retention      time.Duration
	RaftSelfAddr   string
	RaftPeers      []string

	Static     *StaticLeaderConfig
	Raft       *RaftSettings
	Proxy      *ProxySettings
	Forwarding *ForwardingSettings
}

// NewLiteFSSettings validates s and returns an independent copy
func NewLiteFSSettings(s LiteFSSettings) (*LiteFSSettings, error) {
	if err := validatePath("mount_path", s.MountPath); err != nil {
		return nil, err
	}
	if err := validatePath("data_path", s.DataPath); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.DatabaseName) == "" {
		return nil, sidecarerrors.ConfigError("database_name must not be blank")
	}
	switch s.LeaderElection {
	case LeaderElectionStatic:
	case LeaderElectionRaft:
		if strings.TrimSpace(s.RaftSelfAddr) == "" {
			return nil, sidecarerrors.ConfigError("raft_self_addr is required when leader_election is raft")
		}
		if len(s.RaftPeers) == 0 {
			return nil, sidecarerrors.ConfigError("raft_peers must not be empty when leader_election is raft")
		}
	default:
		return nil, sidecarerrors.ConfigErrorf("leader_election must be one of: static, raft (got %q)", s.LeaderElection)
	}
	if s.Retention < 0 {
		return nil, sidecarerrors.ConfigError("retention must not be negative")
	}

	out := s
	if s.RaftPeers != nil {
		out.RaftPeers = append([]string(nil), s.RaftPeers...)
	}
	return &out, nil
}

// validatePath enforces absolute, traversal-free, NUL-free paths
func validatePath(field, p string) error {
	if strings.ContainsRune(p, 0) {
		return sidecarerrors.ConfigErrorf("%s must not contain NUL bytes", field)
	}
	if !strings.HasPrefix(p, "/") {
		return sidecarerrors.ConfigErrorf("%s must be an absolute path (got %q)", field, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return sidecarerrors.ConfigErrorf("%s must not contain '..' segments (got %q)", field, p)
		}
	}
	return nil
}

// StaticLeaderConfig names the designated primary in static mode
type StaticLeaderConfig struct {
	primaryHostname string
}

// NewStaticLeaderConfig validates the primary hostname
func NewStaticLeaderConfig(primaryHostname string) (*StaticLeaderConfig, error) {
	if primaryHostname == "" {
		return nil, sidecarerrors.ConfigError("primary_hostname must not be empty")
	}
	if strings.TrimSpace(primaryHostname) != primaryHostname {
		return nil, sidecarerrors.ConfigError("primary_hostname must not have leading or trailing whitespace")
	}
	for _, r := range primaryHostname {
		if unicode.IsControl(r) {
			return nil, sidecarerrors.ConfigError("primary_hostname must not contain control characters")
		}
	}
	return &StaticLeaderConfig{primaryHostname: primaryHostname}, nil
}

// PrimaryHostname returns the designated primary
func (c *StaticLeaderConfig) PrimaryHostname() string {
	return c.primaryHostname
}

// RaftSettings describes cluster membership for quorum math
type RaftSettings struct {
	nodeID         string
	clusterMembers []string
	quorumSize     int
}

// NewRaftSettings validates membership and computes the quorum size
func NewRaftSettings(nodeID string, clusterMembers []string) (*RaftSettings, error) {
	if strings.TrimSpace(nodeID) == "" {
		return nil, sidecarerrors.ConfigError("node_id must not be blank")
	}
	if len(clusterMembers) == 0 {
		return nil, sidecarerrors.ConfigError("cluster_members must not be empty")
	}
	found := false
	for _, m := range clusterMembers {
		if m == nodeID {
			found = true
			break
		}
	}
	if !found {
		return nil, sidecarerrors.ConfigErrorf("node_id %q must be one of cluster_members", nodeID)
	}

	return &RaftSettings{
		nodeID:         nodeID,
		clusterMembers: append([]string(nil), clusterMembers...),
		quorumSize:     len(clusterMembers)/2 + 1,
	}, nil
}

func (r *RaftSettings) NodeID() string { return r.nodeID }

// ClusterMembers returns a copy of the ordered member list
func (r *RaftSettings) ClusterMembers() []string {
	return append([]string(nil), r.clusterMembers...)
}

func (r *RaftSettings) ClusterSize() int { return len(r.clusterMembers) }

// QuorumSize is a strict majority of the cluster
func (r *RaftSettings) QuorumSize() int { return r.quorumSize }

// HasQuorum reports whether reachable members form a majority
func (r *RaftSettings) HasQuorum(reachable int) bool {
	return reachable >= r.quorumSize
}

// QuorumPolicy holds election and heartbeat timing
type QuorumPolicy struct {
	electionTimeoutMs   int
	heartbeatIntervalMs int
}

// NewQuorumPolicy requires 0 < heartbeat < election timeout
func NewQuorumPolicy(electionTimeoutMs, heartbeatIntervalMs int) (*QuorumPolicy, error) {
	if electionTimeoutMs <= 0 {
		return nil, sidecarerrors.ConfigError("election_timeout_ms must be positive")
	}
	if heartbeatIntervalMs <= 0 {
		return nil, sidecarerrors.ConfigError("heartbeat_interval_ms must be positive")
	}
	if heartbeatIntervalMs >= electionTimeoutMs {
		return nil, sidecarerrors.ConfigError("heartbeat_interval_ms must be less than election_timeout_ms")
	}
	return &QuorumPolicy{
		electionTimeoutMs:   electionTimeoutMs,
		heartbeatIntervalMs: heartbeatIntervalMs,
	}, nil
}

func (q *QuorumPolicy) ElectionTimeout() time.Duration {
	return time.Duration(q.electionTimeoutMs) * time.Millisecond
}

func (q *QuorumPolicy) HeartbeatInterval() time.Duration {
	return time.Duration(q.heartbeatIntervalMs) * time.Millisecond
}

// ProxySettings configures the LiteFS built-in HTTP proxy
type ProxySettings struct {
	Addr                   string
	Target                 string
	DB                     string
	Passthrough            []string
	PrimaryRedirectTimeout time.Duration
}

// NewProxySettings validates proxy settings
func NewProxySettings(p ProxySettings) (*ProxySettings, error) {
	if strings.TrimSpace(p.Addr) == "" {
		return nil, sidecarerrors.ConfigError("proxy.addr must not be blank")
	}
	if strings.TrimSpace(p.Target) == "" {
		return nil, sidecarerrors.ConfigError("proxy.target must not be blank")
	}
	if strings.TrimSpace(p.DB) == "" {
		return nil, sidecarerrors.ConfigError("proxy.db must not be blank")
	}
	if p.PrimaryRedirectTimeout < 0 {
		return nil, sidecarerrors.ConfigError("proxy.primary_redirect_timeout must not be negative")
	}
	out := p
	out.Passthrough = append([]string(nil), p.Passthrough...)
	return &out, nil
}

// ForwardingSettings configures write forwarding to the primary
type ForwardingSettings struct {
	Enabled    bool
	PrimaryURL string
	Scheme     string
	Timeout    time.Duration

	MaxRetries  int
	BackoffBase time.Duration
	MaxBackoff  time.Duration

	CircuitBreakerEnabled      bool
	CircuitBreakerThreshold    int
	CircuitBreakerResetTimeout time.Duration

	ExcludedPaths     []string
	RequestsPerSecond float64
	BurstSize         int
	IdempotencyTTL    time.Duration
}

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NewForwardingSettings validates forwarding settings
func NewForwardingSettings(f ForwardingSettings) (*ForwardingSettings, error) {
	if f.Scheme != "http" && f.Scheme != "https" {
		return nil, sidecarerrors.ConfigErrorf("forwarding.scheme must be http or https (got %q)", f.Scheme)
	}
	if f.PrimaryURL != "" {
		if schemePrefix.MatchString(f.PrimaryURL) {
			return nil, sidecarerrors.ConfigError("forwarding.primary_url must not include a scheme")
		}
		if _, err := url.Parse(f.Scheme + "://" + f.PrimaryURL); err != nil {
			return nil, sidecarerrors.ConfigErrorf("forwarding.primary_url is invalid: %v", err)
		}
	}
	if f.Timeout <= 0 {
		return nil, sidecarerrors.ConfigError("forwarding.timeout must be positive")
	}
	if f.MaxRetries < 0 {
		return nil, sidecarerrors.ConfigError("forwarding.max_retries must not be negative")
	}
	if f.BackoffBase <= 0 || f.MaxBackoff <= 0 {
		return nil, sidecarerrors.ConfigError("forwarding backoff values must be positive")
	}
	if f.CircuitBreakerThreshold < 1 {
		return nil, sidecarerrors.ConfigError("forwarding.circuit_breaker.threshold must be at least 1")
	}
	if f.CircuitBreakerResetTimeout <= 0 {
		return nil, sidecarerrors.ConfigError("forwarding.circuit_breaker.reset_timeout must be positive")
	}
	if f.RequestsPerSecond < 0 || f.BurstSize < 0 {
		return nil, sidecarerrors.ConfigError("forwarding rate limit values must not be negative")
	}
	for _, p := range f.ExcludedPaths {
		if expr, ok := strings.CutPrefix(p, "re:"); ok {
			if _, err := regexp.Compile(expr); err != nil {
				return nil, sidecarerrors.ConfigErrorf("forwarding.excluded_paths: invalid regex %q: %v", expr, err)
			}
		}
	}
	out := f
	out.ExcludedPaths = append([]string(nil), f.ExcludedPaths...)
	return &out, nil
}
