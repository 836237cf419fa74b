package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// liteFSFile mirrors the litefs.yml layout consumed by the replication engine
type liteFSFile struct {
	FUSE  liteFSFUSE   `yaml:"fuse"`
	Data  liteFSData   `yaml:"data"`
	Proxy *liteFSProxy `yaml:"proxy,omitempty"`
	Lease liteFSLease  `yaml:"lease"`
}

type liteFSFUSE struct {
	Dir string `yaml:"dir"`
}

type liteFSData struct {
	Dir       string `yaml:"dir"`
	Retention string `yaml:"retention,omitempty"`
}

type liteFSProxy struct {
	Addr                   string   `yaml:"addr"`
	Target                 string   `yaml:"target"`
	DB                     string   `yaml:"db"`
	Passthrough            []string `yaml:"passthrough,omitempty"`
	PrimaryRedirectTimeout string   `yaml:"primary-redirect-timeout,omitempty"`
}

type liteFSLease struct {
	Type         string   `yaml:"type"`
	Candidate    bool     `yaml:"candidate"`
	Hostname     string   `yaml:"hostname,omitempty"`
	RaftSelfAddr string   `yaml:"raft-self-addr,omitempty"`
	RaftPeers    []string `yaml:"raft-peers,omitempty"`
}

// GenerateLiteFSConfig renders litefs.yml for this node. In static mode
// only the designated primary is a lease candidate.
func GenerateLiteFSConfig(s *LiteFSSettings, hostname string) ([]byte, error) {
	file := liteFSFile{
		FUSE: liteFSFUSE{Dir: s.MountPath},
		Data: liteFSData{Dir: s.DataPath},
	}
	if s.Retention > 0 {
		file.Data.Retention = s.Retention.String()
	}

	if s.Proxy != nil {
		file.Proxy = &liteFSProxy{
			Addr:        s.Proxy.Addr,
			Target:      s.Proxy.Target,
			DB:          s.Proxy.DB,
			Passthrough: s.Proxy.Passthrough,
		}
		if s.Proxy.PrimaryRedirectTimeout > 0 {
			file.Proxy.PrimaryRedirectTimeout = s.Proxy.PrimaryRedirectTimeout.String()
		}
	}

	switch s.LeaderElection {
	case LeaderElectionStatic:
		if s.Static == nil {
			return nil, fmt.Errorf("static leader election requires a primary hostname")
		}
		file.Lease = liteFSLease{
			Type:      string(LeaderElectionStatic),
			Candidate: hostname == s.Static.PrimaryHostname(),
			Hostname:  s.Static.PrimaryHostname(),
		}
	case LeaderElectionRaft:
		file.Lease = liteFSLease{
			Type:         string(LeaderElectionRaft),
			Candidate:    true,
			RaftSelfAddr: s.RaftSelfAddr,
			RaftPeers:    s.RaftPeers,
		}
	default:
		return nil, fmt.Errorf("unsupported leader election mode %q", s.LeaderElection)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal litefs config: %w", err)
	}
	return data, nil
}

// WriteLiteFSConfig renders litefs.yml and writes it to path
func WriteLiteFSConfig(path string, s *LiteFSSettings, hostname string) error {
	data, err := GenerateLiteFSConfig(s, hostname)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write litefs config: %w", err)
	}
	return nil
}
