package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "none", cfg.FailOn)
	assert.Equal(t, 4, cfg.Engine.MaxWorkers)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.True(t, cfg.Cache.Enabled)
	assert.Contains(t, cfg.Filter.IncludedExtensions, ".py")
	assert.Contains(t, cfg.Filter.ExcludedDirs, "node_modules")
	assert.Equal(t, 88, cfg.Static.Flake8.MaxLineLength)
	assert.Equal(t, []string{"B101"}, cfg.Static.Bandit.Skip)
	assert.True(t, cfg.Privacy.RedactSecrets)
	require.NoError(t, cfg.Validate())
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("CRITIC_FORMAT", "json")
	t.Setenv("CRITIC_FAIL_ON", "warning")
	t.Setenv("CRITIC_MAX_WORKERS", "8")
	t.Setenv("CRITIC_PARALLEL", "true")
	t.Setenv("CRITIC_CACHE_ENABLED", "false")
	t.Setenv("CRITIC_CACHE_TTL_HOURS", "2")
	t.Setenv("CRITIC_LOG_LEVEL", "debug")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := Default()
	require.NoError(t, mergeEnv(&cfg))

	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "warning", cfg.FailOn)
	assert.Equal(t, 8, cfg.Engine.MaxWorkers)
	assert.True(t, cfg.Engine.Parallel)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 2, cfg.Cache.TTLHours)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestMergeEnv_Invalid(t *testing.T) {
	t.Setenv("CRITIC_MAX_WORKERS", "many")
	cfg := Default()
	err := mergeEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRITIC_MAX_WORKERS")
}

func TestMergeOverrides(t *testing.T) {
	cfg := Default()
	require.NoError(t, mergeOverrides(&cfg, map[string]string{
		"format":            "sarif",
		"failOn":            "error",
		"engine.maxWorkers": "2",
		"cache.enabled":     "",
	}))
	assert.Equal(t, "sarif", cfg.Format)
	assert.Equal(t, "error", cfg.FailOn)
	assert.Equal(t, 2, cfg.Engine.MaxWorkers)
	assert.True(t, cfg.Cache.Enabled, "empty override is ignored")

	require.NoError(t, mergeOverrides(&cfg, nil))
}

func TestSetField(t *testing.T) {
	cfg := Default()
	tests := []struct {
		key   string
		value string
	}{
		{"filter.includedExtensions", ".go, .rs"},
		{"filter.excludedPatterns", "*_test.go,gen/**"},
		{"static.tools", "flake8"},
		{"static.mypy.strict", "true"},
		{"size.maxAdditions", "200"},
		{"privacy.redactSecrets", "false"},
	}
	for _, tt := range tests {
		require.NoError(t, SetField(&cfg, tt.key, tt.value), "SetField(%q)", tt.key)
	}
	assert.Equal(t, []string{".go", ".rs"}, cfg.Filter.IncludedExtensions)
	assert.Equal(t, []string{"*_test.go", "gen/**"}, cfg.Filter.ExcludedPatterns)
	assert.Equal(t, []string{"flake8"}, cfg.Static.Tools)
	assert.True(t, cfg.Static.Mypy.Strict)
	assert.Equal(t, 200, cfg.Size.MaxAdditions)
	assert.False(t, cfg.Privacy.RedactSecrets)
}

func TestSetField_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, SetField(&cfg, "nonexistent", "value"))
	assert.Error(t, SetField(&cfg, "engine.maxWorkers", "notanumber"))
	assert.Error(t, SetField(&cfg, "cache.enabled", "maybe"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }, "Format must be one of"},
		{"bad failOn", func(c *Config) { c.FailOn = "high" }, "FailOn must be one of"},
		{"no extensions", func(c *Config) { c.Filter.IncludedExtensions = nil }, "IncludedExtensions needs at least 1"},
		{"extension without dot", func(c *Config) { c.Filter.IncludedExtensions = []string{"go"} }, "must start with"},
		{"bad glob", func(c *Config) { c.Filter.ExcludedPatterns = []string{"[unclosed"} }, "not a valid glob"},
		{"zero workers", func(c *Config) { c.Engine.MaxWorkers = 0 }, "MaxWorkers must be >= 1"},
		{"negative ttl", func(c *Config) { c.Cache.TTLHours = -1 }, "TTLHours must be >= 0"},
		{"unknown tool", func(c *Config) { c.Static.Tools = []string{"pylint"} }, "Tools[0] must be one of"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CRITIC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-test/critic", dir)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-test/critic/config.yaml", path)

	t.Setenv("CRITIC_CONFIG", "/etc/critic.yaml")
	path, err = ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/critic.yaml", path)
}

func TestLoad_FileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `format: markdown
cache:
  enabled: false
filter:
  includedExtensions: [".py"]
privacy:
  redactSecrets: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Format)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 24, cfg.Cache.TTLHours, "unset key keeps default")
	assert.Equal(t, []string{".py"}, cfg.Filter.IncludedExtensions)
	assert.Contains(t, cfg.Filter.ExcludedDirs, ".git")
	assert.False(t, cfg.Privacy.RedactSecrets)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: markdown\nfailOn: info\n"), 0o644))
	t.Setenv("CRITIC_FORMAT", "json")

	cfg, err := Load(path, map[string]string{"failOn": "error"})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format, "env beats file")
	assert.Equal(t, "error", cfg.FailOn, "override beats file")
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Format, cfg.Format)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: [unterminated\n"), 0o644))
	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  maxWorkers: 0\n"), 0o644))
	_, err := Load(path, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Format = "json"
	cfg.GitHub.Token = "secret"
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret", "token is never written")

	loaded := Default()
	require.NoError(t, LoadFile(path, &loaded))
	assert.Equal(t, "json", loaded.Format)
	assert.Equal(t, cfg.Filter, loaded.Filter)
}
