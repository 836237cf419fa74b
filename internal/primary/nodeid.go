package primary

import (
	"fmt"
	"os"
	"strings"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/devrev/litefs-sidecar/internal/port"
)

var (
	_ port.NodeIDResolver = StaticNodeID("")
	_ port.NodeIDResolver = EnvNodeID("")
	_ port.NodeIDResolver = HostnameNodeID{}
	_ port.NodeIDResolver = FirstNodeID(nil)
)

// StaticNodeID resolves to a fixed value
type StaticNodeID string

func (s StaticNodeID) ResolveNodeID() (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", sidecarerrors.NodeIDUnset("config")
	}
	return id, nil
}

// EnvNodeID resolves from the named environment variable
type EnvNodeID string

func (e EnvNodeID) ResolveNodeID() (string, error) {
	id := strings.TrimSpace(os.Getenv(string(e)))
	if id == "" {
		return "", sidecarerrors.NodeIDUnset("env " + string(e))
	}
	return id, nil
}

// HostnameNodeID resolves to the OS hostname
type HostnameNodeID struct{}

func (HostnameNodeID) ResolveNodeID() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to read hostname: %w", err)
	}
	if strings.TrimSpace(host) == "" {
		return "", sidecarerrors.NodeIDUnset("hostname")
	}
	return strings.TrimSpace(host), nil
}

// FirstNodeID tries each resolver in order and returns the first success
type FirstNodeID []port.NodeIDResolver

func (f FirstNodeID) ResolveNodeID() (string, error) {
	var lastErr error = sidecarerrors.NodeIDUnset("no resolvers")
	for _, r := range f {
		id, err := r.ResolveNodeID()
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return "", lastErr
}
