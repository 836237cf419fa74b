package primary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MarkerWriter manages the marker entry in static leader mode
type MarkerWriter struct {
	mountPath string
}

// NewMarkerWriter creates a writer for the marker under mountPath
func NewMarkerWriter(mountPath string) *MarkerWriter {
	return &MarkerWriter{mountPath: mountPath}
}

// Path returns the marker location
func (w *MarkerWriter) Path() string {
	return filepath.Join(w.mountPath, MarkerName)
}

// Write stores nodeID in the marker, replacing it atomically
func (w *MarkerWriter) Write(nodeID string) error {
	if err := checkMount(w.mountPath); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(w.mountPath, MarkerName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create marker temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(nodeID); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.Path()); err != nil {
		return fmt.Errorf("failed to install marker: %w", err)
	}
	return nil
}

// Remove deletes the marker. A missing marker is not an error.
func (w *MarkerWriter) Remove() error {
	if err := os.Remove(w.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	return nil
}

// Read returns the trimmed marker content. The error wraps os.ErrNotExist
// when there is no marker.
func (w *MarkerWriter) Read() (string, error) {
	data, err := os.ReadFile(w.Path())
	if err != nil {
		return "", fmt.Errorf("failed to read marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether the marker is present
func (w *MarkerWriter) Exists() (bool, error) {
	_, err := os.Stat(w.Path())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat marker: %w", err)
	}
}
