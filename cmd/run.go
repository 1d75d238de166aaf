package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/config"
	"github.com/sells-group/menu-ingredients/internal/extract"
	"github.com/sells-group/menu-ingredients/internal/model"
	"github.com/sells-group/menu-ingredients/internal/monitoring"
	"github.com/sells-group/menu-ingredients/internal/pipeline"
	"github.com/sells-group/menu-ingredients/internal/resilience"
	"github.com/sells-group/menu-ingredients/internal/source"
	"github.com/sells-group/menu-ingredients/pkg/anthropic"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract ingredients for a batch of menu items and record the run",
	Example: `  menu-cli run --limit 10
  menu-cli run --limit 5 --sqlite data/mydb_clean.sqlite --chunk-size 5
  menu-cli run --dry-run --output yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyRunFlags(cmd)

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		mode := config.ModeRun
		if dryRun {
			mode = config.ModeExtract
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		ctx := cmd.Context()
		if cfg.Run.TimeoutSecs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Run.TimeoutSecs)*time.Second)
			defer cancel()
		}

		zap.L().Info("loading menu items",
			zap.Int("limit", cfg.Source.Limit),
			zap.String("sqlite", cfg.Source.SQLitePath),
		)
		reader, err := source.Open(cfg.Source.SQLitePath)
		if err != nil {
			return err
		}
		defer reader.Close() //nolint:errcheck

		var writer pipeline.RunWriter
		if !dryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			writer = st
		}

		client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithSDKRetries(0))
		p := pipeline.New(reader, newExtractor(client, cfg), writer)

		result, err := p.Run(ctx, pipeline.Options{
			Limit:     cfg.Source.Limit,
			ChunkSize: cfg.Extract.ChunkSize,
			Meta:      runMeta(cfg),
			DryRun:    dryRun,
		})
		pushRunMetrics(ctx, cfg.Run)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if dryRun || output != "" {
			return writeOutput(os.Stdout, output, result)
		}
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("limit") {
		cfg.Source.Limit, _ = f.GetInt("limit")
	}
	if f.Changed("sqlite") {
		cfg.Source.SQLitePath, _ = f.GetString("sqlite")
	}
	if f.Changed("chunk-size") {
		cfg.Extract.ChunkSize, _ = f.GetInt("chunk-size")
	}
	if f.Changed("concurrency") {
		cfg.Extract.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("model") {
		cfg.Anthropic.Model, _ = f.GetString("model")
	}
	if f.Changed("no-batch") {
		cfg.Anthropic.NoBatch, _ = f.GetBool("no-batch")
	}
	if f.Changed("prompt-version") {
		cfg.Run.PromptVersion, _ = f.GetString("prompt-version")
	}
	if f.Changed("pipeline-version") {
		cfg.Run.PipelineVersion, _ = f.GetString("pipeline-version")
	}
	if f.Changed("timeout") {
		cfg.Run.TimeoutSecs, _ = f.GetInt("timeout")
	}
}

// pushRunMetrics sends the pipeline metrics to the configured Pushgateway.
// A failed push is logged and never fails the run.
func pushRunMetrics(ctx context.Context, rc config.RunConfig) {
	if rc.PushGatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := monitoring.PushRunMetrics(pushCtx, rc.PushGatewayURL, rc.PushJob, monitoring.NewRunRegistry()); err != nil {
		zap.L().Warn("push run metrics failed", zap.Error(err))
	}
}

// runMeta resolves the provenance recorded on extraction_runs. Empty
// versions are stored as NULL.
func runMeta(c *config.Config) model.RunMeta {
	meta := model.RunMeta{ModelName: c.Anthropic.Model}
	if c.Run.PromptVersion != "" {
		v := c.Run.PromptVersion
		meta.PromptVersion = &v
	}
	if c.Run.PipelineVersion != "" {
		v := c.Run.PipelineVersion
		meta.PipelineVersion = &v
	}
	return meta
}

func newExtractor(client anthropic.Client, c *config.Config) *extract.Extractor {
	retry := resilience.DefaultRetryConfig()
	if c.Extract.RetryAttempts > 0 {
		retry.MaxAttempts = c.Extract.RetryAttempts
	}
	return extract.New(client, extract.Config{
		Model:          c.Anthropic.Model,
		MaxTokens:      c.Anthropic.MaxTokens,
		RateLimit:      c.Anthropic.RateLimit,
		Concurrency:    c.Extract.Concurrency,
		BatchThreshold: c.Anthropic.BatchThreshold,
		NoBatch:        c.Anthropic.NoBatch,
		Retry:          retry,
	})
}

func init() {
	f := runCmd.Flags()
	f.Int("limit", 10, "number of menu items to process")
	f.Int("chunk-size", 1, "menu items per model call")
	f.String("sqlite", "", "path to the SQLite menu database (default from config)")
	f.String("model", "", "model name (default from config)")
	f.String("prompt-version", "", "prompt_version recorded on the run")
	f.String("pipeline-version", "", "pipeline_version recorded on the run")
	f.Int("concurrency", 1, "parallel model calls")
	f.Bool("no-batch", false, "never use the Message Batches API")
	f.Bool("dry-run", false, "extract and print results without writing")
	f.Int("timeout", 0, "abort the run after this many seconds (0 = no limit)")
	f.StringP("output", "o", "", "print the run summary as json or yaml")
	rootCmd.AddCommand(runCmd)
}
