package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the critic configuration.
type Config struct {
	Format    string         `yaml:"format" validate:"oneof=text json markdown sarif"`
	FailOn    string         `yaml:"failOn" validate:"oneof=none error warning info suggestion"`
	RulesFile string         `yaml:"rulesFile,omitempty"`
	Filter    FilterConfig   `yaml:"filter"`
	Engine    EngineConfig   `yaml:"engine"`
	Cache     CacheConfig    `yaml:"cache"`
	Static    StaticConfig   `yaml:"static"`
	Patterns  PatternsConfig `yaml:"patterns"`
	Size      SizeConfig     `yaml:"size"`
	Privacy   PrivacyConfig  `yaml:"privacy"`
	Log       LogConfig      `yaml:"log"`
	GitHub    GitHubConfig   `yaml:"github"`
}

// FilterConfig selects which changed files are analyzed.
type FilterConfig struct {
	IncludedExtensions []string `yaml:"includedExtensions" validate:"min=1,dive,startswith=."`
	ExcludedDirs       []string `yaml:"excludedDirs" validate:"dive,required"`
	ExcludedPatterns   []string `yaml:"excludedPatterns" validate:"dive,glob"`
}

// EngineConfig controls dispatch.
type EngineConfig struct {
	Parallel   bool `yaml:"parallel"`
	MaxWorkers int  `yaml:"maxWorkers" validate:"gte=1,lte=64"`
}

// CacheConfig controls result caching.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path,omitempty"`
	TTLHours int    `yaml:"ttlHours" validate:"gte=0"`
}

// StaticConfig configures the external linters.
type StaticConfig struct {
	Enabled        bool         `yaml:"enabled"`
	Tools          []string     `yaml:"tools" validate:"dive,oneof=flake8 bandit mypy"`
	TimeoutSeconds int          `yaml:"timeoutSeconds" validate:"gte=1"`
	Flake8         Flake8Config `yaml:"flake8"`
	Bandit         BanditConfig `yaml:"bandit"`
	Mypy           MypyConfig   `yaml:"mypy"`
}

// Flake8Config holds flake8 options.
type Flake8Config struct {
	MaxLineLength int      `yaml:"maxLineLength" validate:"gte=1"`
	Ignore        []string `yaml:"ignore"`
}

// BanditConfig holds bandit options.
type BanditConfig struct {
	Skip []string `yaml:"skip"`
}

// MypyConfig holds mypy options.
type MypyConfig struct {
	Strict               bool `yaml:"strict"`
	IgnoreMissingImports bool `yaml:"ignoreMissingImports"`
}

// PatternsConfig toggles the built-in pattern rules.
type PatternsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SizeConfig configures the large-change warning.
type SizeConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxAdditions int  `yaml:"maxAdditions" validate:"gte=1"`
}

// PrivacyConfig controls redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `yaml:"redactSecrets"`
	RedactPaths   []string `yaml:"redactPaths" validate:"dive,glob"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// GitHubConfig configures the pull request client. The token is only read
// from the environment and never written to disk.
type GitHubConfig struct {
	Token  string `yaml:"-"`
	APIURL string `yaml:"apiURL,omitempty" validate:"omitempty,url"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Format: "text",
		FailOn: "none",
		Filter: FilterConfig{
			IncludedExtensions: []string{".py", ".js", ".ts", ".java", ".cpp", ".h", ".go", ".rs"},
			ExcludedDirs: []string{
				"__pycache__", ".git", "node_modules", ".venv", "venv",
				"build", "dist", ".pytest_cache",
			},
			ExcludedPatterns: []string{"*.pyc", "*.log", "*.tmp"},
		},
		Engine: EngineConfig{
			Parallel:   false,
			MaxWorkers: 4,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLHours: 24,
		},
		Static: StaticConfig{
			Enabled:        true,
			Tools:          []string{"flake8", "bandit", "mypy"},
			TimeoutSeconds: 30,
			Flake8: Flake8Config{
				MaxLineLength: 88,
				Ignore:        []string{"E203", "W503"},
			},
			Bandit: BanditConfig{
				Skip: []string{"B101"},
			},
			Mypy: MypyConfig{
				Strict:               false,
				IgnoreMissingImports: true,
			},
		},
		Patterns: PatternsConfig{Enabled: true},
		Size: SizeConfig{
			Enabled:      true,
			MaxAdditions: 50,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secret*"},
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for critic.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "critic"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "critic"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "critic"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "critic"), nil
	default:
		return filepath.Join(home, ".config", "critic"), nil
	}
}

// ConfigPath returns the config file path: CRITIC_CONFIG when set, otherwise
// config.yaml in ConfigDir.
func ConfigPath() (string, error) {
	if p := os.Getenv("CRITIC_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadFile decodes the YAML file at path over cfg. Keys absent from the file
// keep their current values. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes the config to path, or to ConfigPath when path is empty.
func Save(cfg Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// An empty path means ConfigPath(). The overrides map comes from CLI flags
// and uses SetField keys. The result is validated.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if err := LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps environment variables to SetField keys.
var envKeys = []struct {
	env string
	key string
}{
	{"CRITIC_FORMAT", "format"},
	{"CRITIC_FAIL_ON", "failOn"},
	{"CRITIC_MAX_WORKERS", "engine.maxWorkers"},
	{"CRITIC_PARALLEL", "engine.parallel"},
	{"CRITIC_CACHE_ENABLED", "cache.enabled"},
	{"CRITIC_CACHE_PATH", "cache.path"},
	{"CRITIC_CACHE_TTL_HOURS", "cache.ttlHours"},
	{"CRITIC_LOG_LEVEL", "log.level"},
	{"CRITIC_LOG_FORMAT", "log.format"},
	{"CRITIC_GITHUB_API_URL", "github.apiURL"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k, v := range overrides {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := SetField(cfg, k, overrides[k]); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is
// unknown or the value does not parse. List values are comma-separated.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "format":
		cfg.Format = value
	case "failOn":
		cfg.FailOn = value
	case "rulesFile":
		cfg.RulesFile = value
	case "filter.includedExtensions":
		cfg.Filter.IncludedExtensions = splitList(value)
	case "filter.excludedDirs":
		cfg.Filter.ExcludedDirs = splitList(value)
	case "filter.excludedPatterns":
		cfg.Filter.ExcludedPatterns = splitList(value)
	case "engine.parallel":
		cfg.Engine.Parallel, err = parseBool(key, value)
	case "engine.maxWorkers":
		cfg.Engine.MaxWorkers, err = parseInt(key, value)
	case "cache.enabled":
		cfg.Cache.Enabled, err = parseBool(key, value)
	case "cache.path":
		cfg.Cache.Path = value
	case "cache.ttlHours":
		cfg.Cache.TTLHours, err = parseInt(key, value)
	case "static.enabled":
		cfg.Static.Enabled, err = parseBool(key, value)
	case "static.tools":
		cfg.Static.Tools = splitList(value)
	case "static.timeoutSeconds":
		cfg.Static.TimeoutSeconds, err = parseInt(key, value)
	case "static.flake8.maxLineLength":
		cfg.Static.Flake8.MaxLineLength, err = parseInt(key, value)
	case "static.flake8.ignore":
		cfg.Static.Flake8.Ignore = splitList(value)
	case "static.bandit.skip":
		cfg.Static.Bandit.Skip = splitList(value)
	case "static.mypy.strict":
		cfg.Static.Mypy.Strict, err = parseBool(key, value)
	case "static.mypy.ignoreMissingImports":
		cfg.Static.Mypy.IgnoreMissingImports, err = parseBool(key, value)
	case "patterns.enabled":
		cfg.Patterns.Enabled, err = parseBool(key, value)
	case "size.enabled":
		cfg.Size.Enabled, err = parseBool(key, value)
	case "size.maxAdditions":
		cfg.Size.MaxAdditions, err = parseInt(key, value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "github.apiURL":
		cfg.GitHub.APIURL = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
