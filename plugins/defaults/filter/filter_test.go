package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate.dev/cli/internal/core/domain"
)

func writeDefaults(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultsFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPreSubmit_FillsUnsetOptions(t *testing.T) {
	path := writeDefaults(t, `
# site defaults
partition = gpu
time_limit = 120
tasks = 8
comment = from defaults
`)
	f := NewWithPath(path)

	opts := &domain.JobOptions{NumTasks: 1}
	require.NoError(t, f.PreSubmit(domain.CliBatch, opts))

	assert.Equal(t, "gpu", opts.Partition)
	assert.Equal(t, 120, opts.TimeLimit)
	assert.Equal(t, 8, opts.NumTasks)
	assert.Equal(t, "from defaults", opts.Comment)
}

func TestPreSubmit_ExplicitOptionsWin(t *testing.T) {
	path := writeDefaults(t, "partition=gpu\ntime_limit=120\ntasks=8\ncomment=nope\n")
	f := NewWithPath(path)

	opts := &domain.JobOptions{
		Partition: "debug",
		TimeLimit: 5,
		NumTasks:  2,
		Comment:   "mine",
	}
	require.NoError(t, f.PreSubmit(domain.CliRun, opts))

	assert.Equal(t, "debug", opts.Partition)
	assert.Equal(t, 5, opts.TimeLimit)
	assert.Equal(t, 2, opts.NumTasks)
	assert.Equal(t, "mine", opts.Comment)
}

func TestPreSubmit_MissingFileIsNotAnError(t *testing.T) {
	f := NewWithPath(filepath.Join(t.TempDir(), DefaultsFileName))

	opts := &domain.JobOptions{JobName: "plain"}
	require.NoError(t, f.PreSubmit(domain.CliBatch, opts))
	assert.Equal(t, &domain.JobOptions{JobName: "plain"}, opts)
}

func TestPreSubmit_UnknownKeysIgnored(t *testing.T) {
	path := writeDefaults(t, "future_option=whatever\npartition=gpu\n")
	f := NewWithPath(path)

	opts := &domain.JobOptions{}
	require.NoError(t, f.PreSubmit(domain.CliBatch, opts))
	assert.Equal(t, "gpu", opts.Partition)
}

func TestPreSubmit_BadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"non-numeric time", "time_limit=soon\n"},
		{"negative time", "time_limit=-10\n"},
		{"zero tasks", "tasks=0\n"},
		{"missing equals", "partition gpu\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewWithPath(writeDefaults(t, tt.content))
			assert.Error(t, f.PreSubmit(domain.CliBatch, &domain.JobOptions{}))
		})
	}
}

func TestInfo(t *testing.T) {
	info, err := New().Info()
	require.NoError(t, err)
	assert.Equal(t, "cli_filter/user_defaults", info.Type)
}

func TestPostSubmit_NoOp(t *testing.T) {
	f := NewWithPath(writeDefaults(t, "partition=gpu\n"))
	opts := &domain.JobOptions{Partition: "debug"}
	require.NoError(t, f.PostSubmit(domain.CliBatch, 1234, opts))
	assert.Equal(t, "debug", opts.Partition)
}
