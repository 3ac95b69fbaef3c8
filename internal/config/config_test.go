package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config dir at a temp dir and clears every variable
// mergeEnv reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, e := range envKeys {
		t.Setenv(e.env, "")
	}
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "parallel", cfg.Strategy)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 120*time.Second, cfg.AnalyzerTimeout())
	assert.Equal(t, 3000, cfg.MaxPatchChars)
	assert.Equal(t, 64, cfg.GitHub.TokenCacheSize)
	assert.True(t, cfg.Privacy.RedactSecrets)
	assert.True(t, cfg.Server.PostComments)
	assert.Equal(t, 10*time.Minute, cfg.ReviewTimeout())
	require.NoError(t, cfg.Validate())
}

func TestMergeEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PRGATE_PROVIDER", "openai")
	t.Setenv("PRGATE_MODEL", "gpt-4o")
	t.Setenv("PRGATE_STRATEGY", "Sequential")
	t.Setenv("PRGATE_MAX_CONCURRENCY", "8")
	t.Setenv("GITHUB_APP_ID", "12345")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "s3cret")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3/")

	cfg := Default()
	require.NoError(t, mergeEnv(&cfg))

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "sequential", cfg.Strategy)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.EqualValues(t, 12345, cfg.GitHub.AppID)
	assert.Equal(t, "s3cret", cfg.GitHub.WebhookSecret)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHub.APIURL)
}

func TestMergeEnv_BadInteger(t *testing.T) {
	isolate(t)
	t.Setenv("PRGATE_MAX_CONCURRENCY", "lots")

	cfg := Default()
	err := mergeEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRGATE_MAX_CONCURRENCY")
}

func TestMergeOverrides(t *testing.T) {
	cfg := Default()
	err := mergeOverrides(&cfg, map[string]string{
		"provider":       "gemini",
		"model":          "gemini-2.0-flash",
		"maxConcurrency": "0",
		"server.addr":    "127.0.0.1:9000",
		"rulesFile":      "",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, 0, cfg.MaxConcurrency)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Empty(t, cfg.RulesFile)

	assert.Error(t, mergeOverrides(&cfg, map[string]string{"failOn": "high"}))
}

func TestSetField(t *testing.T) {
	cfg := Default()

	require.NoError(t, SetField(&cfg, "cache.enabled", "false"))
	assert.False(t, cfg.Cache.Enabled)

	require.NoError(t, SetField(&cfg, "privacy.redactPaths", " **/.env , ,keys/** "))
	assert.Equal(t, []string{"**/.env", "keys/**"}, cfg.Privacy.RedactPaths)

	require.NoError(t, SetField(&cfg, "log.level", "DEBUG"))
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.ErrorContains(t, SetField(&cfg, "maxTokens", "abc"), "maxTokens must be an integer")
	assert.ErrorContains(t, SetField(&cfg, "server.skipDrafts", "maybe"), "true or false")
	assert.ErrorContains(t, SetField(&cfg, "nope", "x"), "unknown config key")
}

func TestSetField_EveryKeyIsAccepted(t *testing.T) {
	values := map[string]string{}
	for _, k := range Keys {
		values[k] = "1"
	}
	values["cache.enabled"] = "true"
	values["privacy.redactSecrets"] = "true"
	values["server.skipDrafts"] = "false"
	values["server.postComments"] = "true"
	values["log.color"] = "false"

	cfg := Default()
	for _, k := range Keys {
		assert.NoError(t, SetField(&cfg, k, values[k]), k)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Provider = "watson"
	cfg.Strategy = "random"
	cfg.MaxConcurrency = -1
	cfg.GitHub.TokenCacheSize = -5

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown provider "watson"`)
	assert.Contains(t, msg, `unknown strategy "random"`)
	assert.Contains(t, msg, "maxConcurrency must not be negative")
	assert.Contains(t, msg, "github.tokenCacheSize must not be negative")
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.Provider = "openai"
	cfg.Model = "gpt-4o"
	cfg.MaxConcurrency = 2
	cfg.Cache.Enabled = false
	require.NoError(t, Save(cfg))

	info, err := os.Stat(filepath.Join(dir, "prgate", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFile()
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.Provider)
	assert.Equal(t, 2, loaded.MaxConcurrency)
	assert.False(t, loaded.Cache.Enabled)
}

func TestLoadFile_NoFileGivesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadFile()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "prgate", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"strategy": "sequential", "server": {"skipDrafts": false}}`), 0o600))

	cfg, err := LoadFile()
	require.NoError(t, err)
	assert.Equal(t, "sequential", cfg.Strategy)
	assert.False(t, cfg.Server.SkipDrafts)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.PostComments)
	assert.Equal(t, 4, cfg.MaxConcurrency)
}

func TestLoadFile_Malformed(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "prgate", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": `), 0o600))

	_, err := LoadFile()
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoad_Layering(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "prgate", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": "ollama", "model": "llama3", "maxConcurrency": 6}`), 0o600))
	t.Setenv("PRGATE_MODEL", "qwen2.5")
	t.Setenv("PRGATE_MAX_CONCURRENCY", "3")

	cfg, err := Load(map[string]string{"maxConcurrency": "1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "qwen2.5", cfg.Model)
	assert.Equal(t, 1, cfg.MaxConcurrency)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	isolate(t)
	_, err := Load(map[string]string{"strategy": "roundrobin"})
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.GitHub.Token = "ghp_abc"
	r := cfg.Redacted()
	assert.Equal(t, "********", r.GitHub.Token)
	assert.Empty(t, r.GitHub.WebhookSecret)
	assert.Equal(t, "ghp_abc", cfg.GitHub.Token)
}

func TestUsesGitHubApp(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.UsesGitHubApp())
	cfg.GitHub.AppID = 1
	cfg.GitHub.PrivateKeyPath = "/k.pem"
	assert.True(t, cfg.UsesGitHubApp())
}
