package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/spf13/cobra"

	"github.com/dshills/prgate/internal/config"
	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/gitctx"
	"github.com/dshills/prgate/internal/output"
	"github.com/dshills/prgate/internal/pipeline"
	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/review"
)

// Shared review flags
var (
	flagProvider       string
	flagModel          string
	flagStrategy       string
	flagMaxConcurrency int
	flagFormat         string
	flagOut            string
	flagRules          string
	flagNoRedact       bool
)

func addAnalyzerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider ("+strings.Join(providerChoices(), ", ")+")")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "File review strategy (parallel, sequential)")
	cmd.Flags().IntVar(&flagMaxConcurrency, "max-concurrency", 0, "Maximum concurrent file reviews")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Rules file path")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
}

func addReviewFlags(cmd *cobra.Command) {
	addAnalyzerFlags(cmd)
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format ("+strings.Join(output.Formats, ", ")+")")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
}

func providerChoices() []string {
	return []string{"anthropic", "openai", "gemini", "ollama", "dspy"}
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagStrategy != "" {
		m["strategy"] = flagStrategy
	}
	if flagMaxConcurrency > 0 {
		m["maxConcurrency"] = strconv.Itoa(flagMaxConcurrency)
	}
	if flagRules != "" {
		m["rulesFile"] = flagRules
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	if flagAddr != "" {
		m["server.addr"] = flagAddr
	}
	return m
}

// loadConfig loads the layered configuration and installs the logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return cfg, err
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}
	setupLogging(cfg)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// finish writes the result and sets the exit code from its decision.
func finish(res *review.Result) {
	if err := output.WriteReport(res, flagFormat, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	if res.Decision == review.DecisionRequestChanges {
		exitCode = ExitChangesWanted
	}
}

func checkFormat() error {
	if _, err := output.GetWriter(flagFormat, false); err != nil {
		return usagef("%v", err)
	}
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a pull request or local branch",
	Long:  "Run the review workflow once and print the result. Use subcommands to choose what to review.",
}

var (
	flagRepo         string
	flagInstallation int64
	flagPost         bool
)

var reviewPRCmd = &cobra.Command{
	Use:   "pr <number>",
	Short: "Review a GitHub pull request",
	Long: "Collect a pull request from GitHub, review it and print the result. " +
		"With --post the summary is also posted as a comment on the pull request.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil || number <= 0 {
			fail(usagef("invalid pull request number %q", args[0]))
			return nil
		}
		if err := checkFormat(); err != nil {
			fail(err)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.GetLogger()

		repo, err := resolveRepo(flagRepo)
		if err != nil {
			fail(err)
			return nil
		}
		if cfg.UsesGitHubApp() && flagInstallation == 0 && cfg.GitHub.Token == "" {
			fail(usagef("GitHub App credentials need --installation"))
			return nil
		}

		client, err := newGitHubClient(cfg, logger)
		if err != nil {
			fail(err)
			return nil
		}
		analyzer, err := newAnalyzer(cfg)
		if err != nil {
			fail(err)
			return nil
		}
		orch, err := newOrchestrator(cfg, analyzer, logger)
		if err != nil {
			fail(err)
			return nil
		}

		var poster pipeline.Poster
		if flagPost {
			poster = client
		}

		ctx, stop := signalContext()
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.ReviewTimeout())
		defer cancel()

		fmt.Fprintf(os.Stderr, "Reviewing %s#%d with %s...\n", repo, number, analyzer.Name())
		out, err := pipeline.New(client, orch, poster, logger).Review(ctx, pipeline.Job{
			ID:             "cli",
			Repo:           repo,
			Number:         number,
			InstallationID: flagInstallation,
		})
		if out.Result != nil {
			finish(out.Result)
		}
		if err != nil {
			fail(err)
			return nil
		}
		if out.Comment != nil {
			fmt.Fprintf(os.Stderr, "Posted comment %s\n", out.Comment.HTMLURL)
		}
		return nil
	},
}

// resolveRepo parses ref, or detects the repository from the origin remote.
func resolveRepo(ref string) (pr.Repo, error) {
	if ref != "" {
		repo, err := github.ParseRepo(ref)
		if err != nil {
			return pr.Repo{}, usagef("%v", err)
		}
		return repo, nil
	}
	repo, err := github.DetectRepo()
	if err != nil {
		return pr.Repo{}, usagef("%v (use --repo owner/name)", err)
	}
	return repo, nil
}

var (
	flagBase         string
	flagHead         string
	flagMergeBase    bool
	flagContextLines int
	flagExclude      string
	flagTitle        string
)

var reviewLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Review the current branch against a base ref",
	Long: "Build a pull request snapshot from the local repository (base..head) " +
		"and review it without talking to GitHub.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(); err != nil {
			fail(err)
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.GetLogger()

		ctx, stop := signalContext()
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.ReviewTimeout())
		defer cancel()

		snapshot, err := gitctx.LocalSnapshot(ctx, gitctx.Options{
			Base:         flagBase,
			Head:         flagHead,
			ContextLines: flagContextLines,
			MergeBase:    flagMergeBase,
			Exclude:      splitComma(flagExclude),
			Title:        flagTitle,
		})
		if err != nil {
			fail(err)
			return nil
		}
		if len(snapshot.Files) == 0 {
			fmt.Fprintln(os.Stdout, "No changes between base and head: nothing to review.")
			return nil
		}

		analyzer, err := newAnalyzer(cfg)
		if err != nil {
			fail(err)
			return nil
		}
		orch, err := newOrchestrator(cfg, analyzer, logger)
		if err != nil {
			fail(err)
			return nil
		}

		fmt.Fprintf(os.Stderr, "Reviewing %d files (%s..%s) with %s...\n",
			len(snapshot.Files), snapshot.Base.Branch, snapshot.Head.Branch, analyzer.Name())
		res, err := orch.Run(ctx, snapshot)
		if err != nil {
			fail(err)
			return nil
		}
		finish(res)
		return nil
	},
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func init() {
	reviewCmd.AddCommand(reviewPRCmd)
	reviewCmd.AddCommand(reviewLocalCmd)

	addReviewFlags(reviewPRCmd)
	reviewPRCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository as owner/name (detected from origin if omitted)")
	reviewPRCmd.Flags().Int64Var(&flagInstallation, "installation", 0, "GitHub App installation id")
	reviewPRCmd.Flags().BoolVar(&flagPost, "post", false, "Post the review as a pull request comment")

	addReviewFlags(reviewLocalCmd)
	reviewLocalCmd.Flags().StringVar(&flagBase, "base", "main", "Base ref")
	reviewLocalCmd.Flags().StringVar(&flagHead, "head", "", "Head ref (default HEAD)")
	reviewLocalCmd.Flags().BoolVar(&flagMergeBase, "merge-base", true, "Diff against the merge base of base and head")
	reviewLocalCmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	reviewLocalCmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	reviewLocalCmd.Flags().StringVar(&flagTitle, "title", "", "Title for the review (default: newest commit subject)")
}
