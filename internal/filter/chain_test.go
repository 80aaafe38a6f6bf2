package filter

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/core/ports"
	"subgate.dev/cli/internal/rack"
)

// scriptedFilter records its invocations in a shared trace and can be
// told to fail or mutate the options.
type scriptedFilter struct {
	name    string
	trace   *[]string
	preErr  error
	postErr error
	mutate  func(*domain.JobOptions)
}

func (f *scriptedFilter) PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error {
	*f.trace = append(*f.trace, f.name+".pre")
	if f.mutate != nil {
		f.mutate(opts)
	}
	return f.preErr
}

func (f *scriptedFilter) PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error {
	*f.trace = append(*f.trace, f.name+".post")
	return f.postErr
}

type scriptedHandle struct {
	typ    string
	filter *scriptedFilter
}

func (h *scriptedHandle) Type() string               { return h.typ }
func (h *scriptedHandle) Filter() ports.SubmitFilter { return h.filter }
func (h *scriptedHandle) Close() error               { return nil }

// scriptedLoader peeks the declared type from the candidate file's
// first line and hands out the matching scripted filter.
type scriptedLoader struct {
	filters map[string]*scriptedFilter // by declared type
}

func (l *scriptedLoader) Peek(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	typ, _, _ := strings.Cut(string(data), "\n")
	return typ, nil
}

func (l *scriptedLoader) Load(path string) (ports.Handle, error) {
	typ, err := l.Peek(path)
	if err != nil {
		return nil, err
	}
	f, ok := l.filters[typ]
	if !ok {
		return nil, errors.New("no filter scripted for " + typ)
	}
	return &scriptedHandle{typ: typ, filter: f}, nil
}

// testRack builds a rack over fake plugin files, one per scripted
// filter, registered in the order given.
func testRack(t *testing.T, trace *[]string, filters ...*scriptedFilter) (*rack.Rack, map[string]*scriptedFilter) {
	t.Helper()
	dir := t.TempDir()
	byType := make(map[string]*scriptedFilter, len(filters))
	rk := rack.New(&scriptedLoader{filters: byType})
	require.NoError(t, rk.SetNamespace(Namespace))
	for i, f := range filters {
		f.trace = trace
		typ := Namespace + "/" + f.name
		byType[typ] = f
		path := filepath.Join(dir, f.name+".so")
		require.NoError(t, os.WriteFile(path, []byte(typ+"\n"), 0o644))
		require.NoError(t, rk.RegisterFile(path), "filter %d", i)
	}
	return rk, byType
}

func TestNewChain_AcquiresInListOrder(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "lua"},
		&scriptedFilter{name: "defaults"},
	)

	chain, err := NewChain(rk, "defaults,lua", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, []string{"cli_filter/defaults", "cli_filter/lua"}, chain.Filters())
	for _, e := range rk.Entries() {
		assert.Equal(t, 1, e.Refcount)
	}
}

func TestNewChain_AcceptsQualifiedNames(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace, &scriptedFilter{name: "lua"})

	chain, err := NewChain(rk, "cli_filter/lua", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, []string{"cli_filter/lua"}, chain.Filters())
}

func TestNewChain_UnknownFilterReleasesPartialAcquires(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace, &scriptedFilter{name: "lua"})

	_, err := NewChain(rk, "lua,missing", zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, rack.ErrNotFound)

	// The lua handle acquired before the failure was released, so the
	// rack can shut down.
	require.NoError(t, rk.Close())
}

func TestNewChain_EmptyListIsAnEmptyChain(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace)

	chain, err := NewChain(rk, "", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	assert.Empty(t, chain.Filters())
	assert.NoError(t, chain.PreSubmit(domain.CliBatch, &domain.JobOptions{}))
}

func TestChain_PreSubmitShortCircuits(t *testing.T) {
	var trace []string
	rejected := errors.New("partition not allowed")
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "first"},
		&scriptedFilter{name: "second", preErr: rejected},
		&scriptedFilter{name: "third"},
	)

	chain, err := NewChain(rk, "first,second,third", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	err = chain.PreSubmit(domain.CliBatch, &domain.JobOptions{JobName: "job"})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, []string{"first.pre", "second.pre"}, trace,
		"the third filter must not run after the second fails")
}

func TestChain_PreSubmitMutationsAreVisibleDownstream(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "defaults", mutate: func(o *domain.JobOptions) {
			if o.Partition == "" {
				o.Partition = "debug"
			}
		}},
		&scriptedFilter{name: "audit"},
	)

	chain, err := NewChain(rk, "defaults,audit", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	opts := &domain.JobOptions{JobName: "job"}
	require.NoError(t, chain.PreSubmit(domain.CliRun, opts))
	assert.Equal(t, "debug", opts.Partition)
}

func TestChain_PostSubmitShortCircuits(t *testing.T) {
	var trace []string
	failed := errors.New("accounting unavailable")
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "first", postErr: failed},
		&scriptedFilter{name: "second"},
	)

	chain, err := NewChain(rk, "first,second", zap.NewNop())
	require.NoError(t, err)
	defer chain.Close()

	err = chain.PostSubmit(domain.CliBatch, 4242, &domain.JobOptions{})
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, []string{"first.post"}, trace)
}

func TestChain_Reconfigure(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "lua"},
		&scriptedFilter{name: "defaults"},
	)

	chain, err := NewChain(rk, "lua", zap.NewNop())
	require.NoError(t, err)

	// Unchanged list is a no-op.
	require.NoError(t, chain.Reconfigure("lua"))
	assert.Equal(t, []string{"cli_filter/lua"}, chain.Filters())

	// A changed list swaps the held plugins.
	require.NoError(t, chain.Reconfigure("defaults"))
	assert.Equal(t, []string{"cli_filter/defaults"}, chain.Filters())

	chain.Close()
	require.NoError(t, rk.Close(), "all references must be released")
}

func TestChain_CloseReleasesEverything(t *testing.T) {
	var trace []string
	rk, _ := testRack(t, &trace,
		&scriptedFilter{name: "lua"},
		&scriptedFilter{name: "defaults"},
	)

	chain, err := NewChain(rk, "lua,defaults", zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, rk.Close(), rack.ErrInUse)
	chain.Close()
	require.NoError(t, rk.Close())
}
