// Package primary answers "is this node the primary?" and "where is the
// primary?" from the marker entry LiteFS mounts expose, and keeps that marker
// up to date in static leader mode.
package primary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/port"
)

// MarkerName is the marker entry under the mount path. Its presence means
// this node is primary.
const MarkerName = ".primary"

var (
	_ port.PrimaryDetector = (*Detector)(nil)
	_ port.PrimaryDetector = (*CachedDetector)(nil)
)

// Detector reads primary status from the mount path
type Detector struct {
	mountPath string
}

// NewDetector creates a detector for mountPath
func NewDetector(mountPath string) *Detector {
	return &Detector{mountPath: mountPath}
}

// IsPrimary reports whether the marker exists. A missing mount path is a
// LiteFSNotRunning error; any other stat failure is returned as is so that an
// unknown status is never taken for primary.
func (d *Detector) IsPrimary() (bool, error) {
	if err := checkMount(d.mountPath); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(d.mountPath, MarkerName))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat primary marker: %w", err)
	}
}

func checkMount(mountPath string) error {
	if _, err := os.Stat(mountPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sidecarerrors.LiteFSNotRunning(mountPath)
		}
		return fmt.Errorf("failed to stat mount path: %w", err)
	}
	return nil
}

// CachedDetector memoizes another detector's answer for a TTL. With a zero
// TTL every call is delegated. Errors are never cached.
type CachedDetector struct {
	inner port.PrimaryDetector
	ttl   time.Duration
	clock port.Clock

	mu        sync.Mutex
	cached    bool
	hasValue  bool
	fetchedAt time.Time
}

// NewCachedDetector wraps inner with a ttl cache
func NewCachedDetector(inner port.PrimaryDetector, ttl time.Duration, clock port.Clock) *CachedDetector {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &CachedDetector{inner: inner, ttl: ttl, clock: clock}
}

// IsPrimary implements port.PrimaryDetector
func (c *CachedDetector) IsPrimary() (bool, error) {
	if c.ttl <= 0 {
		return c.inner.IsPrimary()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.hasValue && now.Sub(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	isPrimary, err := c.inner.IsPrimary()
	if err != nil {
		c.hasValue = false
		return false, err
	}
	c.cached = isPrimary
	c.hasValue = true
	c.fetchedAt = now
	return isPrimary, nil
}

// Invalidate drops the cached answer
func (c *CachedDetector) Invalidate() {
	c.mu.Lock()
	c.hasValue = false
	c.mu.Unlock()
}
