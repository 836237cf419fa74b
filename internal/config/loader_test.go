package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoad_Defaults(t *testing.T) {
	t.Setenv("LITEFS_SIDECAR_LITEFS_PRIMARY_HOSTNAME", "node-1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 8091, cfg.Server.GRPCPort)
	assert.Equal(t, time.Second, cfg.Server.PollInterval)
	assert.Equal(t, "/litefs", cfg.LiteFS.MountPath)
	assert.Equal(t, "static", cfg.LiteFS.LeaderElection)
	assert.Equal(t, time.Hour, cfg.LiteFS.Retention)
	assert.Equal(t, "node-1", cfg.LiteFS.PrimaryHostname)
	assert.Equal(t, 3, cfg.Forwarding.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Forwarding.BackoffBase)
	assert.Equal(t, 5, cfg.Forwarding.CircuitBreaker.Threshold)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Health.CheckDataDir)
	assert.Equal(t, 90.0, cfg.Health.DiskWarningPercent)
}

func TestConfigLoad_StaticModeRequiresHostname(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary_hostname")
}

func TestConfigLoad_FromEnvironment(t *testing.T) {
	t.Setenv("LITEFS_SIDECAR_LITEFS_PRIMARY_HOSTNAME", "node-1")
	t.Setenv("LITEFS_SIDECAR_SERVER_PORT", "9000")
	t.Setenv("LITEFS_SIDECAR_FORWARDING_TIMEOUT", "60s")
	t.Setenv("LITEFS_SIDECAR_FORWARDING_CIRCUIT_BREAKER_THRESHOLD", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Forwarding.Timeout)
	assert.Equal(t, 2, cfg.Forwarding.CircuitBreaker.Threshold)
}

func TestConfigLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	content := `
server:
  node_id: node-2
  port: 9100
litefs:
  mount_path: /mnt/litefs
  leader_election: raft
  raft_self_addr: node-2:4321
  raft_peers:
    - node-1:4321
    - node-3:4321
forwarding:
  enabled: true
  primary_url: node-1:8080
  excluded_paths:
    - /health*
    - "re:^/admin/"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-2", cfg.Server.NodeID)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/mnt/litefs", cfg.LiteFS.MountPath)
	assert.Equal(t, []string{"node-1:4321", "node-3:4321"}, cfg.LiteFS.RaftPeers)

	settings, err := cfg.LiteFSSettings()
	require.NoError(t, err)
	assert.Equal(t, LeaderElectionRaft, settings.LeaderElection)
	require.NotNil(t, settings.Raft)
	assert.Equal(t, 3, settings.Raft.ClusterSize())
	assert.Equal(t, 2, settings.Raft.QuorumSize())
	require.NotNil(t, settings.Forwarding)
	assert.Equal(t, []string{"/health*", "re:^/admin/"}, settings.Forwarding.ExcludedPaths)
	require.NotNil(t, settings.Proxy)
	assert.Equal(t, "localhost:8081", settings.Proxy.Target)
}

func TestConfigLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8090, PollInterval: time.Second},
			LiteFS:  LiteFSConfig{LeaderElection: "static", PrimaryHostname: "node-1"},
			Health:  HealthConfig{DiskWarningPercent: 90, DiskCriticalPercent: 95},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.Port = 0
	assertConfigError(t, cfg.Validate())

	cfg = base()
	cfg.Server.PollInterval = 0
	assertConfigError(t, cfg.Validate())

	cfg = base()
	cfg.SplitBrain = SplitBrainConfig{Enabled: true, Source: "gossip"}
	assertConfigError(t, cfg.Validate())

	cfg = base()
	cfg.SplitBrain = SplitBrainConfig{Enabled: true, Source: "carrier-pigeon"}
	assertConfigError(t, cfg.Validate())

	cfg = base()
	cfg.Logging.Format = "xml"
	assertConfigError(t, cfg.Validate())

	cfg = base()
	cfg.Health.DiskWarningPercent = 99
	assertConfigError(t, cfg.Validate())
}

func TestConfigLoad_InvalidSettingsAreConfigErrors(t *testing.T) {
	t.Setenv("LITEFS_SIDECAR_LITEFS_PRIMARY_HOSTNAME", "node-1")
	t.Setenv("LITEFS_SIDECAR_LOGGING_FORMAT", "xml")

	_, err := Load("")
	assertConfigError(t, err)
}

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, sidecarerrors.IsConfigError(err), err.Error())
}
