// Package cmd implements the listings-pipeline command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"listings-pipeline/config"
	"listings-pipeline/services"
	"listings-pipeline/storage"
	"listings-pipeline/utils"
)

var (
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "listings-pipeline",
		Short:         "Bronze → Silver → Gold pipeline for scraped vehicle listings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. Errors are printed to stderr and returned so main
// can exit non-zero.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(silverCommand())
	rootCmd.AddCommand(goldCommand())
	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(ratesCommand())
}

// app bundles what every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	pipeline *services.Pipeline
	insights *services.InsightService
	sinks    []storage.GoldWriter
}

func loadConfig() (*config.Config, *utils.Logger) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, utils.NewLoggerWithLevel(cfg.LogLevel)
}

func newRateProvider(cfg *config.Config, logger *utils.Logger) *services.RateProvider {
	return services.NewRateProvider(services.RateProviderConfig{
		APIURL:    cfg.RatesAPIURL,
		CachePath: cfg.RatesCachePath,
		TTL:       cfg.RatesTTL,
		Timeout:   cfg.RatesTimeout,
	}, nil, logger)
}

// newApp builds the pipeline. Gold sinks are only opened when withSinks is set.
func newApp(ctx context.Context, withSinks bool) (*app, error) {
	cfg, logger := loadConfig()
	a := &app{cfg: cfg, logger: logger, insights: services.NewInsightService(logger)}

	rules := services.DefaultCategoryRules()
	if cfg.CategoryRulesPath != "" {
		loaded, err := services.LoadCategoryRules(cfg.CategoryRulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
		logger.Info("Loaded %d category rules from %s", len(rules), cfg.CategoryRulesPath)
	}

	if withSinks {
		if err := a.openSinks(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	cleaner := services.NewCleaner(services.CleanerConfig{
		DropShopLinks: cfg.DropShopLinks,
		ShopURLPrefix: cfg.ShopURLPrefix,
		DropColumns:   cfg.DropColumns,
	}, logger)

	a.pipeline = services.NewPipeline(services.PipelineConfig{
		RatesBase:           cfg.RatesBase,
		RatesSymbols:        cfg.RatesSymbols,
		UseRatesCache:       true,
		RemovePriceOutliers: cfg.RemovePriceOutliers,
		OutlierStd:          cfg.OutlierStd,
	}, newRateProvider(cfg, logger), cleaner, services.NewFeatureEngineer(rules, logger), a.sinks, logger)

	return a, nil
}

func (a *app) openSinks(ctx context.Context) error {
	if a.cfg.PostgresEnabled {
		pg, err := storage.NewPostgresWriter(ctx, a.cfg.DSN(), a.cfg.DBMaxRetries, a.logger)
		if err != nil {
			a.logger.Error("Failed to connect to PostgreSQL: %v", err)
			return err
		}
		a.sinks = append(a.sinks, pg)
	}
	if a.cfg.SQLitePath != "" {
		sq, err := storage.NewSQLiteWriter(ctx, a.cfg.SQLitePath, a.logger)
		if err != nil {
			return err
		}
		a.sinks = append(a.sinks, sq)
	}
	return nil
}

func (a *app) close() {
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			a.logger.Warn("Error closing sink: %v", err)
		}
	}
	_ = a.logger.Sync()
}
