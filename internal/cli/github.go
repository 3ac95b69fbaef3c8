package cli

import (
	"fmt"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"

	"github.com/dshills/prgate/internal/cache"
	"github.com/dshills/prgate/internal/config"
	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/providers"
	"github.com/dshills/prgate/internal/redact"
	"github.com/dshills/prgate/internal/review"
)

// newGitHubClient builds a client from the configured credentials. GitHub
// App credentials win over a static token; with both set the token is still
// used for calls made without an installation.
func newGitHubClient(cfg config.Config, logger *logging.Logger) (*github.Client, error) {
	opts := github.Options{
		APIURL: cfg.GitHub.APIURL,
		Token:  cfg.GitHub.Token,
		Logger: logger,
	}
	if cfg.UsesGitHubApp() {
		key, err := github.LoadPrivateKey(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		minter, err := github.NewAppTokenMinter(cfg.GitHub.AppID, key, cfg.GitHub.APIURL, nil)
		if err != nil {
			return nil, err
		}
		opts.Tokens = github.NewTokenCache(minter.Mint, cfg.GitHub.TokenCacheSize, logger)
	}
	return github.NewClient(opts)
}

// newAnalyzer builds the configured provider, wrapped in the response cache.
func newAnalyzer(cfg config.Config) (providers.Analyzer, error) {
	a, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return providers.WithCache(a, cfg.Model, store), nil
}

// newOrchestrator builds the review orchestrator shared by every run of the
// process.
func newOrchestrator(cfg config.Config, a providers.Analyzer, logger *logging.Logger) (*review.Orchestrator, error) {
	strategy, err := review.NewStrategy(cfg.Strategy, cfg.MaxConcurrency)
	if err != nil {
		return nil, err
	}
	rules, err := review.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return review.New(a, review.Options{
		Strategy:        strategy,
		AnalyzerTimeout: cfg.AnalyzerTimeout(),
		MaxTokens:       cfg.MaxTokens,
		MaxPatchChars:   cfg.MaxPatchChars,
		Rules:           rules,
		Redact: redact.Policy{
			Secrets: cfg.Privacy.RedactSecrets,
			Paths:   cfg.Privacy.RedactPaths,
		},
		Logger: logger,
	}), nil
}
