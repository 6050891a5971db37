package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/cache"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/harvest"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"github.com/xkilldash9x/dealwire/internal/publish"
	"github.com/xkilldash9x/dealwire/internal/server"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP server with the publish and flash sale endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, observability.GetLogger())
		},
	}
	return serveCmd
}

// components are the long-lived pieces behind the HTTP server.
type components struct {
	server  *server.Server
	results *cache.TTL[int, []harvest.Item]
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	metrics := observability.NewMetrics()

	launcher := browser.NewChromeLauncher(cfg.Browser(), logger, metrics)
	wcfg := cfg.Wizard()
	locator := browser.NewHeuristicLocator(wcfg.FieldWait, wcfg.PollInterval, logger)

	pcfg := cfg.Publish()
	if pcfg.Secret == "" {
		logger.Warn("Publish secret is not set; /publish will answer SECRET_missing.")
	}
	if !pcfg.HasCredentials() {
		logger.Warn("Deals site credentials are not set; /publish will answer chollometro_creds_missing.")
	}
	orchestrator, err := publish.NewOrchestrator(pcfg, wcfg, cfg.Browser(), launcher, locator, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("publish setup: %w", err)
	}

	scfg := cfg.Server()
	if timeout := requestTimeout(scfg.RequestTimeout, orchestrator.Budget()); timeout != scfg.RequestTimeout {
		logger.Warn("server.request_timeout is shorter than a publish flow; raising it.",
			zap.Duration("configured", scfg.RequestTimeout), zap.Duration("effective", timeout))
		scfg.RequestTimeout = timeout
	}

	hcfg := cfg.Harvest()
	results := cache.New[int, []harvest.Item]()
	harvester, err := harvest.New(hcfg, launcher, cfg.Browser().Concurrency, results, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("harvest setup: %w", err)
	}
	if hcfg.CacheJanitorInterval > 0 {
		results.Start(ctx, hcfg.CacheJanitorInterval)
	}

	return &components{
		server:  server.New(scfg, orchestrator, harvester, metrics, logger),
		results: results,
	}, nil
}

// requestTimeoutGrace separates the server deadline from the publish
// flow's own so the flow reports its failure first.
const requestTimeoutGrace = 5 * time.Second

// requestTimeout returns configured unless it would cut a publish flow of
// length budget short. Zero means unbounded and is kept.
func requestTimeout(configured, budget time.Duration) time.Duration {
	if configured <= 0 || configured >= budget+requestTimeoutGrace {
		return configured
	}
	return budget + requestTimeoutGrace
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.results.Stop()

	logger.Info("dealwire starting.", zap.String("version", Version), zap.String("address", cfg.Server().Addr()))
	if err := c.server.Run(ctx); err != nil {
		return err
	}
	logger.Info("dealwire stopped.")
	return nil
}
