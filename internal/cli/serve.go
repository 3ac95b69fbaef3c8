package cli

import (
	"errors"
	"net/http"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/spf13/cobra"

	"github.com/dshills/prgate/internal/pipeline"
	"github.com/dshills/prgate/internal/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the GitHub webhook receiver",
	Long: "Listen for GitHub pull_request deliveries and review each opened, " +
		"synchronized, reopened or ready-for-review pull request in the background.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.GetLogger()

		if cfg.GitHub.WebhookSecret == "" {
			fail(usagef("a webhook secret is required: set GITHUB_WEBHOOK_SECRET or github.webhookSecret"))
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
		if cfg.Server.PostComments {
			poster = client
		}
		srv, err := server.New(pipeline.New(client, orch, poster, logger), server.Options{
			Secret:        []byte(cfg.GitHub.WebhookSecret),
			ReviewTimeout: cfg.ReviewTimeout(),
			SkipDrafts:    cfg.Server.SkipDrafts,
			Logger:        logger,
		})
		if err != nil {
			fail(err)
			return nil
		}

		ctx, stop := signalContext()
		defer stop()
		logger.Info(ctx, "prgate %s: %s/%s, %s strategy, posting comments: %t",
			version, analyzer.Name(), cfg.Model, orch.Strategy().Name(), cfg.Server.PostComments)
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
		return nil
	},
}

func init() {
	addAnalyzerFlags(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from config, :8080)")
}
