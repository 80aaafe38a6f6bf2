package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate.dev/cli/internal/rack"
)

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugin_dir: /opt/subgate/plugins
filters: defaults,lua
security:
  check_file_owner: true
  check_dir_writable: true
  owner_uid: 1000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/subgate/plugins", cfg.PluginDir)
	assert.Equal(t, "defaults,lua", cfg.Filters)
	assert.True(t, cfg.Security.CheckFileOwner)
	assert.False(t, cfg.Security.CheckFileWritable)
	assert.True(t, cfg.Security.CheckDirWritable)
	assert.Equal(t, 1000, cfg.Security.OwnerUID)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().PluginDir, cfg.PluginDir)
	assert.Empty(t, cfg.Filters)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugin_dir: [\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filters: lua\n"), 0o644))

	t.Setenv("SUBGATE_PLUGIN_DIR", "/env/plugins")
	t.Setenv("SUBGATE_FILTERS", "defaults")
	t.Setenv("SUBGATE_OWNER_UID", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/plugins", cfg.PluginDir)
	assert.Equal(t, "defaults", cfg.Filters)
	assert.Equal(t, 42, cfg.Security.OwnerUID)
}

func TestSecurityConfig_Policy(t *testing.T) {
	tests := []struct {
		name string
		cfg  SecurityConfig
		want rack.PolicyFlag
	}{
		{"none", SecurityConfig{}, 0},
		{"file owner", SecurityConfig{CheckFileOwner: true}, rack.CheckFileOwner},
		{
			"all",
			SecurityConfig{
				CheckFileOwner:    true,
				CheckFileWritable: true,
				CheckDirOwner:     true,
				CheckDirWritable:  true,
			},
			rack.CheckFileOwner | rack.CheckFileWritable | rack.CheckDirOwner | rack.CheckDirWritable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.cfg.Policy()
			assert.Equal(t, tt.want, p.Flags)
		})
	}
}
