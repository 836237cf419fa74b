package primary

import (
	"github.com/devrev/litefs-sidecar/internal/config"
	"go.uber.org/zap"
)

// Initializer decides primary status in static mode
type Initializer struct {
	primaryHostname string
}

// NewInitializer creates an initializer for the configured primary
func NewInitializer(cfg *config.StaticLeaderConfig) *Initializer {
	return &Initializer{primaryHostname: cfg.PrimaryHostname()}
}

// IsPrimary is an exact, case-sensitive hostname comparison
func (i *Initializer) IsPrimary(hostname string) bool {
	return hostname == i.primaryHostname
}

// Bootstrap brings the marker in line with the static configuration: the
// designated primary writes it, every other node removes it. It returns
// whether this node is primary.
func Bootstrap(initializer *Initializer, writer *MarkerWriter, hostname string, logger *zap.Logger) (bool, error) {
	if initializer.IsPrimary(hostname) {
		if err := writer.Write(hostname); err != nil {
			return false, err
		}
		logger.Info("Primary marker written",
			zap.String("hostname", hostname),
			zap.String("path", writer.Path()))
		return true, nil
	}

	if err := writer.Remove(); err != nil {
		return false, err
	}
	logger.Info("Running as replica",
		zap.String("hostname", hostname),
		zap.String("primary", initializer.primaryHostname))
	return false, nil
}
