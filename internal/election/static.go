// Package election provides the leader elections behind the failover
// coordinator: a static election for a fixed primary and a hashicorp/raft
// backed election for dynamic leadership.
package election

import (
	"fmt"
	"sync"

	"github.com/devrev/litefs-sidecar/internal/port"
	"github.com/devrev/litefs-sidecar/internal/primary"
	"go.uber.org/zap"
)

var _ port.LeaderElection = (*StaticElection)(nil)

// StaticElection elects the configured primary hostname. Leadership is
// reflected in the marker so the primary detector agrees with it.
type StaticElection struct {
	initializer *primary.Initializer
	marker      *primary.MarkerWriter
	hostname    string
	logger      *zap.Logger

	mu      sync.Mutex
	demoted bool
}

// NewStaticElection creates the election for hostname
func NewStaticElection(
	initializer *primary.Initializer,
	marker *primary.MarkerWriter,
	hostname string,
	logger *zap.Logger,
) *StaticElection {
	return &StaticElection{
		initializer: initializer,
		marker:      marker,
		hostname:    hostname,
		logger:      logger,
	}
}

// IsLeaderElected is true on the designated primary unless it has been
// demoted.
func (s *StaticElection) IsLeaderElected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializer.IsPrimary(s.hostname) && !s.demoted
}

// IsDesignated reports whether this host is the configured primary,
// regardless of demotion.
func (s *StaticElection) IsDesignated() bool {
	return s.initializer.IsPrimary(s.hostname)
}

// ElectAsLeader writes the marker on the designated primary. Other hosts
// cannot be elected in static mode.
func (s *StaticElection) ElectAsLeader() error {
	if !s.initializer.IsPrimary(s.hostname) {
		return fmt.Errorf("host %q is not the configured static primary", s.hostname)
	}
	if err := s.marker.Write(s.hostname); err != nil {
		return err
	}

	s.mu.Lock()
	s.demoted = false
	s.mu.Unlock()
	return nil
}

// DemoteFromLeader removes the marker and withdraws leadership until the
// next ElectAsLeader.
func (s *StaticElection) DemoteFromLeader() error {
	if err := s.marker.Remove(); err != nil {
		return err
	}

	s.mu.Lock()
	wasLeader := !s.demoted && s.initializer.IsPrimary(s.hostname)
	s.demoted = true
	s.mu.Unlock()

	if wasLeader {
		s.logger.Info("Static primary demoted", zap.String("hostname", s.hostname))
	}
	return nil
}
