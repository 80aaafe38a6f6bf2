package procloader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Manifest is the sidecar metadata every plugin binary ships with.
// It is how the rack learns a candidate's declared type without
// executing it: launching a go-plugin binary runs its code, so the
// type peek reads this file instead.
type Manifest struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

const (
	// maxTypeLen bounds the declared-type string.
	maxTypeLen = 64
	// maxManifestLen bounds the manifest read.
	maxManifestLen = 4096
)

// ManifestPath returns the sidecar path for a plugin binary.
func ManifestPath(pluginPath string) string {
	return pluginPath + ".manifest.json"
}

// ReadManifest loads and validates a plugin manifest.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxManifestLen))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := validateType(m.Type); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// validateType enforces the "<namespace>/<variant>" shape and the
// declared-type length bound.
func validateType(typ string) error {
	if typ == "" {
		return fmt.Errorf("missing declared type")
	}
	if len(typ) > maxTypeLen {
		return fmt.Errorf("declared type longer than %d bytes", maxTypeLen)
	}
	ns, variant, ok := strings.Cut(typ, "/")
	if !ok || ns == "" || variant == "" || strings.Contains(variant, "/") {
		return fmt.Errorf("declared type %q is not of the form <namespace>/<variant>", typ)
	}
	return nil
}
