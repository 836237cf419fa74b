package config

import (
	"time"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
)

// Config holds all configuration for the sidecar process
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LiteFS     LiteFSConfig     `mapstructure:"litefs"`
	Forwarding ForwardingConfig `mapstructure:"forwarding"`
	Raft       RaftConfig       `mapstructure:"raft"`
	SplitBrain SplitBrainConfig `mapstructure:"split_brain"`
	Gossip     GossipConfig     `mapstructure:"gossip"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Health     HealthConfig     `mapstructure:"health"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP/gRPC server and polling configuration
type ServerConfig struct {
	NodeID          string        `mapstructure:"node_id"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PrimaryCacheTTL time.Duration `mapstructure:"primary_cache_ttl"`
}

// LiteFSConfig is the raw form of LiteFSSettings
type LiteFSConfig struct {
	MountPath       string        `mapstructure:"mount_path"`
	DataPath        string        `mapstructure:"data_path"`
	DatabaseName    string        `mapstructure:"database_name"`
	LeaderElection  string        `mapstructure:"leader_election"`
	ProxyAddr       string        `mapstructure:"proxy_addr"`
	Enabled         bool          `mapstructure:"enabled"`
	Retention       time.Duration `mapstructure:"retention"`
	PrimaryHostname string        `mapstructure:"primary_hostname"`
	RaftSelfAddr    string        `mapstructure:"raft_self_addr"`
	RaftPeers       []string      `mapstructure:"raft_peers"`
	ConfigOutput    string        `mapstructure:"config_output"`
	Proxy           ProxyConfig   `mapstructure:"proxy"`
}

// ProxyConfig holds the LiteFS proxy section
type ProxyConfig struct {
	Target                 string        `mapstructure:"target"`
	Passthrough            []string      `mapstructure:"passthrough"`
	PrimaryRedirectTimeout time.Duration `mapstructure:"primary_redirect_timeout"`
}

// ForwardingConfig holds write forwarding configuration
type ForwardingConfig struct {
	Enabled        bool                 `mapstructure:"enabled"`
	PrimaryURL     string               `mapstructure:"primary_url"`
	Scheme         string               `mapstructure:"scheme"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	MaxRetries     int                  `mapstructure:"max_retries"`
	BackoffBase    time.Duration        `mapstructure:"backoff_base"`
	MaxBackoff     time.Duration        `mapstructure:"max_backoff"`
	ExcludedPaths  []string             `mapstructure:"excluded_paths"`
	IdempotencyTTL time.Duration        `mapstructure:"idempotency_ttl"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimiter    RateLimiterConfig    `mapstructure:"rate_limiter"`
}

// CircuitBreakerConfig holds breaker thresholds
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Threshold    int           `mapstructure:"threshold"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// RateLimiterConfig holds forwarding rate limits; zero disables limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// RaftConfig holds timing for the raft election adapter
type RaftConfig struct {
	ElectionTimeoutMs   int    `mapstructure:"election_timeout_ms"`
	HeartbeatIntervalMs int    `mapstructure:"heartbeat_interval_ms"`
	Bootstrap           bool   `mapstructure:"bootstrap"`
	DataDir             string `mapstructure:"data_dir"`
}

// SplitBrainConfig selects how cluster state is gathered
type SplitBrainConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Source      string        `mapstructure:"source"`
	PeerURLs    []string      `mapstructure:"peer_urls"`
	PeerTimeout time.Duration `mapstructure:"peer_timeout"`
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindAddr       string        `mapstructure:"bind_addr"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

// RedisConfig represents the Redis idempotency store configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HealthConfig holds thresholds for the local resource checks
type HealthConfig struct {
	CheckDataDir        bool    `mapstructure:"check_data_dir"`
	DiskWarningPercent  float64 `mapstructure:"disk_warning_percent"`
	DiskCriticalPercent float64 `mapstructure:"disk_critical_percent"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks process-level settings. Domain settings are validated
// when they are built by LiteFSSettings.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return sidecarerrors.ConfigErrorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return sidecarerrors.ConfigErrorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.PollInterval <= 0 {
		return sidecarerrors.ConfigError("server.poll_interval must be positive")
	}
	if c.Server.PrimaryCacheTTL < 0 {
		return sidecarerrors.ConfigError("server.primary_cache_ttl must not be negative")
	}
	if LeaderElectionMode(c.LiteFS.LeaderElection) == LeaderElectionStatic && c.LiteFS.PrimaryHostname == "" {
		return sidecarerrors.ConfigError("litefs.primary_hostname is required when leader_election is static")
	}
	if c.SplitBrain.Enabled {
		switch c.SplitBrain.Source {
		case "http":
			if c.SplitBrain.PeerTimeout <= 0 {
				return sidecarerrors.ConfigError("split_brain.peer_timeout must be positive")
			}
		case "gossip":
			if !c.Gossip.Enabled {
				return sidecarerrors.ConfigError("split_brain.source gossip requires gossip.enabled")
			}
		default:
			return sidecarerrors.ConfigError("split_brain.source must be one of: http, gossip")
		}
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return sidecarerrors.ConfigError("redis.host is required when redis is enabled")
	}
	if c.Health.DiskWarningPercent <= 0 || c.Health.DiskWarningPercent > c.Health.DiskCriticalPercent || c.Health.DiskCriticalPercent > 100 {
		return sidecarerrors.ConfigErrorf("health disk thresholds must satisfy 0 < warning (%.1f) <= critical (%.1f) <= 100",
			c.Health.DiskWarningPercent, c.Health.DiskCriticalPercent)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return sidecarerrors.ConfigError("logging.format must be one of: json, console")
	}
	return nil
}

// LiteFSSettings converts the raw configuration into validated settings
func (c *Config) LiteFSSettings() (*LiteFSSettings, error) {
	s := LiteFSSettings{
		MountPath:      c.LiteFS.MountPath,
		DataPath:       c.LiteFS.DataPath,
		DatabaseName:   c.LiteFS.DatabaseName,
		LeaderElection: LeaderElectionMode(c.LiteFS.LeaderElection),
		ProxyAddr:      c.LiteFS.ProxyAddr,
		Enabled:        c.LiteFS.Enabled,
		Retention:      c.LiteFS.Retention,
		RaftSelfAddr:   c.LiteFS.RaftSelfAddr,
		RaftPeers:      c.LiteFS.RaftPeers,
	}

	if c.LiteFS.PrimaryHostname != "" {
		static, err := NewStaticLeaderConfig(c.LiteFS.PrimaryHostname)
		if err != nil {
			return nil, err
		}
		s.Static = static
	}

	if s.LeaderElection == LeaderElectionRaft && c.LiteFS.RaftSelfAddr != "" {
		members := append([]string{c.LiteFS.RaftSelfAddr}, c.LiteFS.RaftPeers...)
		raft, err := NewRaftSettings(c.LiteFS.RaftSelfAddr, members)
		if err != nil {
			return nil, err
		}
		s.Raft = raft
	}

	if c.LiteFS.ProxyAddr != "" && c.LiteFS.Proxy.Target != "" {
		proxy, err := NewProxySettings(ProxySettings{
			Addr:                   c.LiteFS.ProxyAddr,
			Target:                 c.LiteFS.Proxy.Target,
			DB:                     c.LiteFS.DatabaseName,
			Passthrough:            c.LiteFS.Proxy.Passthrough,
			PrimaryRedirectTimeout: c.LiteFS.Proxy.PrimaryRedirectTimeout,
		})
		if err != nil {
			return nil, err
		}
		s.Proxy = proxy
	}

	fwd, err := NewForwardingSettings(ForwardingSettings{
		Enabled:                    c.Forwarding.Enabled,
		PrimaryURL:                 c.Forwarding.PrimaryURL,
		Scheme:                     c.Forwarding.Scheme,
		Timeout:                    c.Forwarding.Timeout,
		MaxRetries:                 c.Forwarding.MaxRetries,
		BackoffBase:                c.Forwarding.BackoffBase,
		MaxBackoff:                 c.Forwarding.MaxBackoff,
		CircuitBreakerEnabled:      c.Forwarding.CircuitBreaker.Enabled,
		CircuitBreakerThreshold:    c.Forwarding.CircuitBreaker.Threshold,
		CircuitBreakerResetTimeout: c.Forwarding.CircuitBreaker.ResetTimeout,
		ExcludedPaths:              c.Forwarding.ExcludedPaths,
		RequestsPerSecond:          c.Forwarding.RateLimiter.RequestsPerSecond,
		BurstSize:                  c.Forwarding.RateLimiter.BurstSize,
		IdempotencyTTL:             c.Forwarding.IdempotencyTTL,
	})
	if err != nil {
		return nil, err
	}
	s.Forwarding = fwd

	return NewLiteFSSettings(s)
}

// QuorumPolicy builds the validated raft timing policy
func (c *Config) QuorumPolicy() (*QuorumPolicy, error) {
	return NewQuorumPolicy(c.Raft.ElectionTimeoutMs, c.Raft.HeartbeatIntervalMs)
}
