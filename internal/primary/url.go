package primary

import (
	"errors"
	"os"
	"strings"

	"github.com/devrev/litefs-sidecar/internal/config"
)

// URLSource reports where the primary lives. known is false when no primary
// is known; an empty url with known set means this node is primary.
type URLSource interface {
	PrimaryURL() (url string, known bool, err error)
}

var _ URLSource = (*URLDetector)(nil)

// URLDetector reads the primary address from the marker content
type URLDetector struct {
	mountPath   string
	localNodeID string
	marker      *MarkerWriter
}

// NewURLDetector creates a detector; localNodeID identifies this node in the
// marker content.
func NewURLDetector(mountPath, localNodeID string) *URLDetector {
	return &URLDetector{
		mountPath:   mountPath,
		localNodeID: localNodeID,
		marker:      NewMarkerWriter(mountPath),
	}
}

// PrimaryURL implements URLSource
func (d *URLDetector) PrimaryURL() (string, bool, error) {
	if err := checkMount(d.mountPath); err != nil {
		return "", false, err
	}
	content, err := d.marker.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if content == "" || content == d.localNodeID {
		return "", true, nil
	}
	return content, true, nil
}

// URLResolver picks the forwarding target. A statically configured URL wins
// over the dynamic source.
type URLResolver struct {
	settings *config.ForwardingSettings
	dynamic  URLSource
}

// NewURLResolver creates a resolver; dynamic may be nil
func NewURLResolver(settings *config.ForwardingSettings, dynamic URLSource) *URLResolver {
	return &URLResolver{settings: settings, dynamic: dynamic}
}

// Resolve returns scheme://address of the primary, or ok=false when there is
// nothing to forward to (no primary known, or this node is primary).
func (r *URLResolver) Resolve() (string, bool, error) {
	if r.settings != nil && r.settings.Enabled && r.settings.PrimaryURL != "" {
		return r.withScheme(r.settings.PrimaryURL), true, nil
	}
	if r.dynamic == nil {
		return "", false, nil
	}

	addr, known, err := r.dynamic.PrimaryURL()
	if err != nil {
		return "", false, err
	}
	addr = strings.TrimSpace(addr)
	if !known || addr == "" {
		return "", false, nil
	}
	return r.withScheme(addr), true, nil
}

func (r *URLResolver) withScheme(addr string) string {
	scheme := "http"
	if r.settings != nil && r.settings.Scheme != "" {
		scheme = r.settings.Scheme
	}
	return scheme + "://" + addr
}
