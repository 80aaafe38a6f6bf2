// Package procloader loads submit-filter plugins as child processes
// speaking the go-plugin protocol. The rack only sees the
// ports.Loader capability; this package is the one place that knows
// plugins are executables with JSON sidecar manifests.
package procloader

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"subgate.dev/cli/internal/core/ports"
)

// Loader implements ports.Loader over subprocess plugins.
type Loader struct {
	debug bool
}

// New returns a subprocess plugin loader. With debug set, plugin
// stderr and handshake chatter go to the host's stderr.
func New(debug bool) *Loader {
	return &Loader{debug: debug}
}

// Peek reads the candidate's declared type from its sidecar manifest.
// No candidate code runs: the manifest is plain JSON next to the
// binary.
func (l *Loader) Peek(path string) (string, error) {
	m, err := ReadManifest(ManifestPath(path))
	if err != nil {
		return "", err
	}
	return m.Type, nil
}

// Load starts the plugin process and resolves its filter interface.
func (l *Loader) Load(path string) (ports.Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin file check failed: %w", err)
	}
	if !info.Mode().IsRegular() || info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("plugin %s is not executable", path)
	}

	declared, err := l.Peek(path)
	if err != nil {
		return nil, err
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           pluginLogger(l.debug),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("connect to plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(DispenseName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense filter from %s: %w", path, err)
	}
	mod, ok := raw.(Module)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement the submit filter interface", path)
	}

	// The running plugin reports its own type; it must agree with
	// the manifest the rack vetted before trusting the file.
	reported, err := mod.Info()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("query plugin info from %s: %w", path, err)
	}
	if reported.Type != declared {
		client.Kill()
		return nil, fmt.Errorf("plugin %s reports type %q but its manifest declares %q",
			path, reported.Type, declared)
	}

	return &procHandle{typ: declared, client: client, filter: mod}, nil
}

// procHandle is one running plugin process.
type procHandle struct {
	typ    string
	client *plugin.Client
	filter ports.SubmitFilter
}

func (h *procHandle) Type() string               { return h.typ }
func (h *procHandle) Filter() ports.SubmitFilter { return h.filter }

// Close terminates the plugin process.
func (h *procHandle) Close() error {
	h.client.Kill()
	return nil
}

func pluginLogger(debug bool) hclog.Logger {
	level := hclog.Error
	output := io.Discard
	if debug {
		level = hclog.Debug
		output = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "subgate-plugin",
		Level:  level,
		Output: output,
	})
}
