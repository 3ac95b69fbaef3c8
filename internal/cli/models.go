package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/prgate/internal/config"
	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Provider and model management",
}

type modelInfo struct {
	Provider string
	Models   []string
}

var knownModels = []modelInfo{
	{
		Provider: "anthropic",
		Models: []string{
			"claude-sonnet-4-20250514",
			"claude-opus-4-20250514",
			"claude-3-5-haiku-latest",
		},
	},
	{
		Provider: "openai",
		Models: []string{
			"gpt-4.1",
			"gpt-4.1-mini",
			"gpt-4o",
			"o3-mini",
		},
	},
	{
		Provider: "gemini",
		Models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-pro",
		},
	},
	{
		Provider: "ollama",
		Models: []string{
			"llama3.3",
			"llama3.2",
			"llama3.1",
			"codellama",
			"qwen2.5-coder",
			"deepseek-coder-v2",
		},
	},
	{
		Provider: "dspy",
		Models: []string{
			"ollama:qwen2.5-coder",
			"ollama:llama3.1",
			"llamacpp:",
		},
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known providers and models",
	Run: func(cmd *cobra.Command, args []string) {
		current := config.Default()
		if cfg, err := config.Load(nil); err == nil {
			current = cfg
		}
		for _, info := range knownModels {
			fmt.Fprintf(os.Stdout, "%s:\n", info.Provider)
			for _, m := range info.Models {
				marker := " "
				if info.Provider == current.Provider && m == current.Model {
					marker = "*"
				}
				fmt.Fprintf(os.Stdout, " %s %s\n", marker, m)
			}
			fmt.Fprintln(os.Stdout)
		}
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check provider and GitHub credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Checking %s (%s)...\n", cfg.Provider, cfg.Model)
		if err := pingAnalyzer(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			exitCode = exitCodeFor(err)
			return nil
		}
		fmt.Fprintf(os.Stdout, "OK: %s is configured and responding\n", cfg.Provider)

		fmt.Fprintln(os.Stdout, "Checking GitHub credentials...")
		msg, err := checkGitHub(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}
		fmt.Fprintf(os.Stdout, "OK: %s\n", msg)
		return nil
	},
}

func pingAnalyzer(cfg config.Config) error {
	a, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = a.Analyze(ctx, providers.Request{
		System:    "Respond with exactly: ok",
		Prompt:    "ping",
		MaxTokens: 10,
		Label:     "doctor",
	})
	return err
}

// checkGitHub validates GitHub credentials offline: an App key must sign a
// JWT, a static token only has to be present.
func checkGitHub(cfg config.Config) (string, error) {
	switch {
	case cfg.UsesGitHubApp():
		key, err := github.LoadPrivateKey(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return "", err
		}
		minter, err := github.NewAppTokenMinter(cfg.GitHub.AppID, key, cfg.GitHub.APIURL, nil)
		if err != nil {
			return "", err
		}
		if _, err := minter.JWT(); err != nil {
			return "", fmt.Errorf("signing app JWT: %w", err)
		}
		return fmt.Sprintf("GitHub App %d key signs JWTs", cfg.GitHub.AppID), nil
	case cfg.GitHub.Token != "":
		return "static GitHub token is set", nil
	default:
		return "", fmt.Errorf("no GitHub credentials: set GITHUB_TOKEN or GITHUB_APP_ID and GITHUB_PRIVATE_KEY_PATH")
	}
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVar(&flagProvider, "provider", "", "Provider to check")
	modelsDoctorCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
}
