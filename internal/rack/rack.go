// Package rack implements the plugin rack: a registry that discovers
// submit-filter plugins on disk, gates them through a security policy
// before any of their code runs, loads them lazily, and tracks
// borrowed references so a plugin is never unloaded while in use.
package rack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"subgate.dev/cli/internal/core/ports"
)

// entry tracks one discovered plugin. handle is nil while the module
// is not loaded in memory. refcount counts outstanding acquisitions;
// the rack may only unload the module once it reaches zero.
type entry struct {
	declaredType string
	path         string
	handle       ports.Handle
	refcount     int
}

// Rack is the plugin registry. All operations are synchronous and
// guarded by one mutex per rack; there is no per-entry locking and no
// shared state between racks. Entries keep discovery insertion order,
// and lookups on duplicate declared types resolve first-registered-
// wins.
type Rack struct {
	mu        sync.Mutex
	entries   []*entry
	namespace string
	policy    SecurityPolicy
	loader    ports.Loader
	closed    bool
}

// EntryInfo is a point-in-time snapshot of one rack entry.
type EntryInfo struct {
	Type     string
	Path     string
	Loaded   bool
	Refcount int
}

// New returns an empty rack with no namespace filter and a disabled
// security policy.
func New(loader ports.Loader) *Rack {
	return &Rack{loader: loader}
}

// SetNamespace restricts future registrations to plugins whose
// declared type starts with ns. Entries already registered are not
// re-filtered.
func (r *Rack) SetNamespace(ns string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	r.namespace = ns
	return nil
}

// SetPolicy replaces the security policy. Entries accepted under an
// earlier, looser policy stay registered: the rack never revalidates,
// even when the policy tightens. Callers that need a clean slate
// should build a new rack.
func (r *Rack) SetPolicy(p SecurityPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	r.policy = p
	return nil
}

// RegisterFile vets a single named plugin file and appends it to the
// rack unloaded. Unlike ScanDir, every failure is surfaced: the
// caller chose this path deliberately.
func (r *Rack) RegisterFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	return r.register(path)
}

// register runs the validate → peek → filter → append pipeline for
// one candidate. Caller holds r.mu.
func (r *Rack) register(path string) error {
	// The trust decision must precede any read of file content:
	// opening a module can execute its initialization code.
	if !r.policy.Accept(path) {
		return fmt.Errorf("%w: %s", ErrSecurityRejected, path)
	}
	declared, err := r.loader.Peek(path)
	if err != nil {
		return fmt.Errorf("%w: peek %s: %v", ErrLoadFailure, path, err)
	}
	if r.namespace != "" && !strings.HasPrefix(declared, r.namespace) {
		return fmt.Errorf("%w: %s declares %q, want namespace %q",
			ErrTypeMismatch, path, declared, r.namespace)
	}
	r.entries = append(r.entries, &entry{declaredType: declared, path: path})
	return nil
}

// ScanDir walks dir and registers every acceptable plugin in it.
// Individual bad candidates are skipped without aborting the walk:
// scanning is exploratory, picking up whatever valid plugins exist.
// The directory itself is vetted against the Dir* policy flags before
// any entry is examined.
func (r *Rack) ScanDir(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	if r.policy.Flags != 0 && !r.policy.acceptDir(dir) {
		return fmt.Errorf("%w: %s", ErrSecurityRejected, dir)
	}
	des, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read plugin dir %s: %w", dir, err)
	}
	for _, de := range des {
		path := filepath.Join(dir, de.Name())
		// Stat follows symlinks; only regular files are candidates.
		st, err := os.Stat(path)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		_ = r.register(path)
	}
	return nil
}

// Acquire returns a loaded handle for the first entry whose declared
// type matches fullType exactly, loading the module on demand. A
// failed lazy load leaves the entry unloaded and does not touch its
// refcount.
func (r *Rack) Acquire(fullType string) (ports.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRackClosed
	}
	for _, e := range r.entries {
		if e.declaredType != fullType {
			continue
		}
		if e.handle == nil {
			h, err := r.loader.Load(e.path)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailure, e.path, err)
			}
			e.handle = h
		}
		e.refcount++
		return e.handle, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, fullType)
}

// Release returns a handle borrowed from Acquire. Releasing more
// times than acquired clamps the refcount at zero, and a handle that
// does not belong to this rack is silently ignored; both are caller
// errors the rack tolerates.
func (r *Rack) Release(h ports.Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.handle == h {
			if e.refcount > 0 {
				e.refcount--
			}
			return
		}
	}
}

// LoadAll eagerly loads every unloaded entry, ignoring individual
// failures. Warm-up only; Acquire remains the authoritative path and
// will report the error if a module is genuinely broken.
func (r *Rack) LoadAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	for _, e := range r.entries {
		if e.handle != nil {
			continue
		}
		if h, err := r.loader.Load(e.path); err == nil {
			e.handle = h
		}
	}
	return nil
}

// PurgeIdle unloads every loaded entry that has no outstanding
// references. Entries stay registered and load again on the next
// Acquire. This is the only eviction the rack performs; an idle
// loaded plugin otherwise stays resident until Close.
func (r *Rack) PurgeIdle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	for _, e := range r.entries {
		if e.handle != nil && e.refcount == 0 {
			_ = e.handle.Close()
			e.handle = nil
		}
	}
	return nil
}

// Close unloads everything and shuts the rack down. It refuses to do
// anything while any plugin is still acquired: unloading mapped code
// that callers still hold would leave them with dangling executable
// references. The refcount check covers every entry before anything
// is unloaded, so teardown is all-or-nothing.
func (r *Rack) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRackClosed
	}
	for _, e := range r.entries {
		if e.refcount > 0 {
			return fmt.Errorf("%w: %s has %d outstanding references",
				ErrInUse, e.declaredType, e.refcount)
		}
	}
	var errs []error
	for _, e := range r.entries {
		if e.handle != nil {
			if err := e.handle.Close(); err != nil {
				errs = append(errs, err)
			}
			e.handle = nil
		}
	}
	r.entries = nil
	r.closed = true
	return errors.Join(errs...)
}

// Entries snapshots the rack contents in discovery order.
func (r *Rack) Entries() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]EntryInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, EntryInfo{
			Type:     e.declaredType,
			Path:     e.path,
			Loaded:   e.handle != nil,
			Refcount: e.refcount,
		})
	}
	return infos
}
