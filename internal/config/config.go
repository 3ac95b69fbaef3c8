package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/prgate/internal/providers"
)

// Config represents the prgate configuration.
type Config struct {
	Provider               string        `json:"provider"`
	Model                  string        `json:"model"`
	Strategy               string        `json:"strategy"`
	MaxConcurrency         int           `json:"maxConcurrency"`
	AnalyzerTimeoutSeconds int           `json:"analyzerTimeoutSeconds"`
	MaxTokens              int           `json:"maxTokens"`
	MaxPatchChars          int           `json:"maxPatchChars"`
	RulesFile              string        `json:"rulesFile,omitempty"`
	Cache                  CacheConfig   `json:"cache"`
	Privacy                PrivacyConfig `json:"privacy"`
	Server                 ServerConfig  `json:"server"`
	GitHub                 GitHubConfig  `json:"github"`
	Log                    LogConfig     `json:"log"`
}

// CacheConfig controls caching of analyzer responses.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// PrivacyConfig controls redaction of patches before they leave the machine.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty"`
}

// ServerConfig controls the webhook server.
type ServerConfig struct {
	Addr                 string `json:"addr"`
	ReviewTimeoutSeconds int    `json:"reviewTimeoutSeconds"`
	SkipDrafts           bool   `json:"skipDrafts"`
	PostComments         bool   `json:"postComments"`
}

// GitHubConfig holds GitHub App or token credentials.
type GitHubConfig struct {
	AppID          int64  `json:"appId,omitempty"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty"`
	WebhookSecret  string `json:"webhookSecret,omitempty"`
	APIURL         string `json:"apiURL,omitempty"`
	Token          string `json:"token,omitempty"`
	TokenCacheSize int    `json:"tokenCacheSize"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `json:"level"`
	Color bool   `json:"color"`
}

// Strategies lists the accepted file review strategies.
var Strategies = []string{"parallel", "sequential"}

// LogLevels lists the accepted log levels.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:               "anthropic",
		Model:                  "claude-sonnet-4-20250514",
		Strategy:               "parallel",
		MaxConcurrency:         4,
		AnalyzerTimeoutSeconds: 120,
		MaxTokens:              4096,
		MaxPatchChars:          3000,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Server: ServerConfig{
			Addr:                 ":8080",
			ReviewTimeoutSeconds: 600,
			SkipDrafts:           true,
			PostComments:         true,
		},
		GitHub: GitHubConfig{
			TokenCacheSize: 64,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// AnalyzerTimeout returns the per-call analyzer timeout.
func (c Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutSeconds) * time.Second
}

// ReviewTimeout returns the timeout for one whole webhook-triggered review.
func (c Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Server.ReviewTimeoutSeconds) * time.Second
}

// UsesGitHubApp reports whether GitHub App credentials are configured.
func (c Config) UsesGitHubApp() bool {
	return c.GitHub.AppID > 0 && c.GitHub.PrivateKeyPath != ""
}

// Validate rejects unknown enum values and negative limits.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(providers.Names, c.Provider) {
		errs = append(errs, fmt.Errorf("unknown provider %q (supported: %s)", c.Provider, strings.Join(providers.Names, ", ")))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if !slices.Contains(Strategies, c.Strategy) {
		errs = append(errs, fmt.Errorf("unknown strategy %q (supported: %s)", c.Strategy, strings.Join(Strategies, ", ")))
	}
	if !slices.Contains(LogLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	limits := []struct {
		name string
		v    int
	}{
		{"maxConcurrency", c.MaxConcurrency},
		{"analyzerTimeoutSeconds", c.AnalyzerTimeoutSeconds},
		{"maxTokens", c.MaxTokens},
		{"maxPatchChars", c.MaxPatchChars},
		{"cache.ttlSeconds", c.Cache.TTLSeconds},
		{"server.reviewTimeoutSeconds", c.Server.ReviewTimeoutSeconds},
		{"github.tokenCacheSize", c.GitHub.TokenCacheSize},
	}
	for _, l := range limits {
		if l.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", l.name, l.v))
		}
	}
	if c.GitHub.AppID < 0 {
		errs = append(errs, fmt.Errorf("github.appId must not be negative, got %d", c.GitHub.AppID))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory for prgate.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prgate"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "prgate"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "prgate"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "prgate"), nil
	default:
		return filepath.Join(home, ".config", "prgate"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads the config file over the defaults. A missing file yields
// the defaults.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	if err := readFileInto(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readFileInto decodes the JSON file at path over cfg, so keys absent from
// the file keep their current values.
func readFileInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	// The file may hold a webhook secret or token.
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags, keyed like SetField (only non-empty
// values are applied). The result is validated.
func Load(overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct {
	env string
	key string
}{
	{"PRGATE_PROVIDER", "provider"},
	{"PRGATE_MODEL", "model"},
	{"PRGATE_STRATEGY", "strategy"},
	{"PRGATE_MAX_CONCURRENCY", "maxConcurrency"},
	{"PRGATE_ANALYZER_TIMEOUT", "analyzerTimeoutSeconds"},
	{"PRGATE_MAX_TOKENS", "maxTokens"},
	{"PRGATE_MAX_PATCH_CHARS", "maxPatchChars"},
	{"PRGATE_RULES_FILE", "rulesFile"},
	{"PRGATE_CACHE_DIR", "cache.dir"},
	{"PRGATE_ADDR", "server.addr"},
	{"PRGATE_REVIEW_TIMEOUT", "server.reviewTimeoutSeconds"},
	{"PRGATE_LOG_LEVEL", "log.level"},
	{"GITHUB_APP_ID", "github.appId"},
	{"GITHUB_PRIVATE_KEY_PATH", "github.privateKeyPath"},
	{"GITHUB_WEBHOOK_SECRET", "github.webhookSecret"},
	{"GITHUB_TOKEN", "github.token"},
	{"GITHUB_API_URL", "github.apiURL"},
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
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every key accepted by SetField.
var Keys = []string{
	"provider", "model", "strategy", "maxConcurrency", "analyzerTimeoutSeconds",
	"maxTokens", "maxPatchChars", "rulesFile",
	"cache.enabled", "cache.dir", "cache.ttlSeconds",
	"privacy.redactSecrets", "privacy.redactPaths",
	"server.addr", "server.reviewTimeoutSeconds", "server.skipDrafts", "server.postComments",
	"github.appId", "github.privateKeyPath", "github.webhookSecret", "github.apiURL",
	"github.token", "github.tokenCacheSize",
	"log.level", "log.color",
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "strategy":
		cfg.Strategy = strings.ToLower(value)
	case "rulesFile":
		cfg.RulesFile = value
	case "cache.dir":
		cfg.Cache.Dir = value
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "server.addr":
		cfg.Server.Addr = value
	case "github.privateKeyPath":
		cfg.GitHub.PrivateKeyPath = value
	case "github.webhookSecret":
		cfg.GitHub.WebhookSecret = value
	case "github.apiURL":
		cfg.GitHub.APIURL = value
	case "github.token":
		cfg.GitHub.Token = value
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "maxConcurrency":
		return setInt(&cfg.MaxConcurrency, key, value)
	case "analyzerTimeoutSeconds":
		return setInt(&cfg.AnalyzerTimeoutSeconds, key, value)
	case "maxTokens":
		return setInt(&cfg.MaxTokens, key, value)
	case "maxPatchChars":
		return setInt(&cfg.MaxPatchChars, key, value)
	case "cache.ttlSeconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "server.reviewTimeoutSeconds":
		return setInt(&cfg.Server.ReviewTimeoutSeconds, key, value)
	case "github.tokenCacheSize":
		return setInt(&cfg.GitHub.TokenCacheSize, key, value)
	case "github.appId":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.GitHub.AppID = n
	case "cache.enabled":
		return setBool(&cfg.Cache.Enabled, key, value)
	case "privacy.redactSecrets":
		return setBool(&cfg.Privacy.RedactSecrets, key, value)
	case "server.skipDrafts":
		return setBool(&cfg.Server.SkipDrafts, key, value)
	case "server.postComments":
		return setBool(&cfg.Server.PostComments, key, value)
	case "log.color":
		return setBool(&cfg.Log.Color, key, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Redacted returns a copy of cfg with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.GitHub.WebhookSecret = mask(c.GitHub.WebhookSecret)
	c.GitHub.Token = mask(c.GitHub.Token)
	c.Privacy.RedactPaths = slices.Clone(c.Privacy.RedactPaths)
	return c
}
