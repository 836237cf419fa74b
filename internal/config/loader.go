package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LITEFS_SIDECAR"

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sidecar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/litefs-sidecar/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, use defaults/env)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.node_id", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.grpc_port", 8091)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.poll_interval", "1s")
	v.SetDefault("server.primary_cache_ttl", "0s")

	// LiteFS defaults
	v.SetDefault("litefs.mount_path", "/litefs")
	v.SetDefault("litefs.data_path", "/var/lib/litefs")
	v.SetDefault("litefs.database_name", "db.sqlite3")
	v.SetDefault("litefs.leader_election", "static")
	v.SetDefault("litefs.proxy_addr", ":8080")
	v.SetDefault("litefs.enabled", true)
	v.SetDefault("litefs.retention", "1h")
	v.SetDefault("litefs.primary_hostname", "")
	v.SetDefault("litefs.raft_self_addr", "")
	v.SetDefault("litefs.raft_peers", []string{})
	v.SetDefault("litefs.config_output", "")
	v.SetDefault("litefs.proxy.target", "localhost:8081")
	v.SetDefault("litefs.proxy.passthrough", []string{})
	v.SetDefault("litefs.proxy.primary_redirect_timeout", "5s")

	// Forwarding defaults
	v.SetDefault("forwarding.enabled", false)
	v.SetDefault("forwarding.primary_url", "")
	v.SetDefault("forwarding.scheme", "http")
	v.SetDefault("forwarding.timeout", "30s")
	v.SetDefault("forwarding.max_retries", 3)
	v.SetDefault("forwarding.backoff_base", "100ms")
	v.SetDefault("forwarding.max_backoff", "5s")
	v.SetDefault("forwarding.excluded_paths", []string{})
	v.SetDefault("forwarding.idempotency_ttl", "24h")
	v.SetDefault("forwarding.circuit_breaker.enabled", true)
	v.SetDefault("forwarding.circuit_breaker.threshold", 5)
	v.SetDefault("forwarding.circuit_breaker.reset_timeout", "30s")
	v.SetDefault("forwarding.rate_limiter.requests_per_second", 0.0)
	v.SetDefault("forwarding.rate_limiter.burst_size", 0)

	// Raft defaults
	v.SetDefault("raft.election_timeout_ms", 1000)
	v.SetDefault("raft.heartbeat_interval_ms", 100)
	v.SetDefault("raft.bootstrap", false)
	v.SetDefault("raft.data_dir", "/var/lib/litefs-sidecar/raft")

	// Split-brain defaults
	v.SetDefault("split_brain.enabled", false)
	v.SetDefault("split_brain.source", "http")
	v.SetDefault("split_brain.peer_urls", []string{})
	v.SetDefault("split_brain.peer_timeout", "2s")

	// Gossip defaults
	v.SetDefault("gossip.enabled", false)
	v.SetDefault("gossip.bind_addr", "0.0.0.0")
	v.SetDefault("gossip.bind_port", 7946)
	v.SetDefault("gossip.seed_nodes", []string{})
	v.SetDefault("gossip.gossip_interval", "200ms")
	v.SetDefault("gossip.probe_timeout", "500ms")
	v.SetDefault("gossip.probe_interval", "1s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Health defaults
	v.SetDefault("health.check_data_dir", true)
	v.SetDefault("health.disk_warning_percent", 90.0)
	v.SetDefault("health.disk_critical_percent", 95.0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
