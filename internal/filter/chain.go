// Package filter drives an ordered chain of submit-filter plugins
// around job submission.
package filter

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/core/ports"
	"subgate.dev/cli/internal/rack"
)

// Namespace is the plugin namespace every submit filter declares.
const Namespace = "cli_filter"

// Chain holds one acquired plugin per configured filter name and runs
// the pre/post-submit operations across them in list order, stopping
// at the first failure. A chain acquires its plugins once at
// construction and releases them at Close; it does not own the rack.
type Chain struct {
	mu      sync.Mutex
	rack    *rack.Rack
	log     *zap.Logger
	list    string
	handles []ports.Handle
}

// NewChain resolves the comma-separated filter list against rk. Names
// may be bare variants ("lua") or fully qualified ("cli_filter/lua").
// The first acquire failure releases everything already held and is
// returned to the caller.
func NewChain(rk *rack.Rack, list string, log *zap.Logger) (*Chain, error) {
	c := &Chain{rack: rk, log: log}
	if err := c.init(list); err != nil {
		return nil, err
	}
	return c, nil
}

// init acquires the plugins for list. Caller holds c.mu or has not
// yet published the chain.
func (c *Chain) init(list string) error {
	var handles []ports.Handle
	for _, name := range splitList(list) {
		full := name
		if !strings.HasPrefix(full, Namespace+"/") {
			full = Namespace + "/" + full
		}
		h, err := c.rack.Acquire(full)
		if err != nil {
			for _, held := range handles {
				c.rack.Release(held)
			}
			c.log.Error("cannot acquire submit filter",
				zap.String("type", full), zap.Error(err))
			return fmt.Errorf("acquire %s: %w", full, err)
		}
		handles = append(handles, h)
	}
	c.list = list
	c.handles = handles
	return nil
}

func splitList(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// PreSubmit runs every filter's PreSubmit in order. The first failure
// stops the chain and vetoes the submission.
func (c *Chain) PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if err := h.Filter().PreSubmit(kind, opts); err != nil {
			c.log.Warn("submit filter rejected job",
				zap.String("type", h.Type()), zap.Error(err))
			return err
		}
	}
	return nil
}

// PostSubmit runs every filter's PostSubmit in order once the job id
// is known, stopping at the first failure.
func (c *Chain) PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if err := h.Filter().PostSubmit(kind, jobID, opts); err != nil {
			c.log.Warn("post-submit filter failed",
				zap.String("type", h.Type()),
				zap.Uint32("job_id", jobID), zap.Error(err))
			return err
		}
	}
	return nil
}

// Reconfigure re-resolves the filter list when it actually changed.
// The old handles are released first; if the new list fails to
// resolve, the chain is left empty and the error surfaced.
func (c *Chain) Reconfigure(list string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if list == c.list {
		return nil
	}
	c.log.Info("submit filter list changed",
		zap.String("from", c.list), zap.String("to", list))
	c.releaseAll()
	c.list = ""
	return c.init(list)
}

// Filters reports the declared types currently held, in chain order.
func (c *Chain) Filters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.handles))
	for _, h := range c.handles {
		types = append(types, h.Type())
	}
	return types
}

// Close releases every held plugin. The typical caller acquires at
// init and releases exactly once here, at shutdown.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAll()
	c.list = ""
}

func (c *Chain) releaseAll() {
	for _, h := range c.handles {
		c.rack.Release(h)
	}
	c.handles = nil
}
