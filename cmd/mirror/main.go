package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/usecase"
	"github.com/user/sitemirror/pkg/config"
)

// flagKeys maps command-line flags onto config keys. Bound per command so
// that crawl and run can share flag names.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"start-url": "start_url",
	"depth":     "max_depth",
	"out":       "output_dir",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.NewViper()}
	err := newRootCmd(a).ExecuteContext(ctx)
	if terr := a.teardown(); err == nil {
		err = terr
	}
	if err != nil {
		if a.logger == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "mirror",
		Short:         "Render a live site into a static, self-contained copy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			for name, key := range flagKeys {
				if f := cmd.Flags().Lookup(name); f != nil {
					if err := a.v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			return a.setup(cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCrawlCmd(a),
		newPatchCmd(a),
		newOptimizeCmd(a),
		newVerifyCmd(a),
		newRunCmd(a),
		newStatusCmd(a),
	)
	return root
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().String("start-url", "", "page the crawl starts from")
	cmd.Flags().Int("depth", 5, "maximum link depth from the start page")
	cmd.Flags().String("out", "dist", "output directory")
}

func newCrawlCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Render and save every same-site page up to the depth bound",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireStartURL(); err != nil {
				return a.fail(err)
			}
			crawler, err := a.crawler(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			if _, err := crawler.Crawl(cmd.Context(), a.cfg.StartURL); err != nil {
				return a.fail(fmt.Errorf("crawl: %w", err))
			}
			return nil
		},
	}
	addCrawlFlags(cmd)
	return cmd
}

func newPatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "Re-apply the document rules to an existing output tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patcher, err := a.patcher()
			if err != nil {
				return a.fail(err)
			}
			if _, err := patcher.Patch(cmd.Context(), a.cfg.OutputDir); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
}

func newOptimizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Shrink oversized images below assets/",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.optimizer().Run(cmd.Context(), a.cfg.OutputDir)
			if err != nil {
				return a.fail(err)
			}
			a.logger.Info("Images optimized",
				zap.Int("scanned", res.Scanned),
				zap.Int("optimized", res.Optimized),
				zap.Int("failed", res.Failed),
				zap.Int64("saved_bytes", res.SavedBytes),
			)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var inventory string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Scan the output tree for dangling references and live-site leftovers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			qa, err := a.qa(cmd.Context(), inventory)
			if err != nil {
				return a.fail(err)
			}
			report, err := qa.Run(cmd.Context(), a.cfg.OutputDir)
			if err != nil {
				return a.fail(err)
			}
			return a.checkReport(report)
		},
	}
	cmd.Flags().StringVar(&inventory, "inventory", "", "asset inventory CSV to cross-check against (must exist)")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl, patch, optimize and verify in one go",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireStartURL(); err != nil {
				return a.fail(err)
			}
			pipeline, err := a.pipeline(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			report, err := pipeline.Run(cmd.Context(), a.cfg.StartURL)
			if err != nil {
				return a.fail(err)
			}
			return a.checkReport(report)
		},
	}
	addCrawlFlags(cmd)
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <url>",
		Short: "Show what the last runs recorded for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statusRepo, ledger, err := a.sinks(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			if a.cfg.RedisAddr == "" && a.cfg.PostgresURL == "" {
				a.logger.Warn("No status sink configured, nothing has been recorded")
			}
			st, err := usecase.NewStatusUseCase(statusRepo, ledger).GetStatus(cmd.Context(), args[0])
			if err != nil {
				return a.fail(err)
			}
			fields := []zap.Field{zap.String("url", st.URL), zap.String("state", string(st.State))}
			if st.Status != nil {
				fields = append(fields, zap.Time("updated_at", st.Status.UpdatedAt), zap.String("failure_reason", st.Status.FailureReason))
			}
			if st.Page != nil {
				fields = append(fields,
					zap.String("local_path", st.Page.LocalPath),
					zap.Int("http_status_code", st.Page.HTTPStatusCode),
					zap.Time("captured_at", st.Page.CapturedAt),
				)
			}
			a.logger.Info("Page status", fields...)
			return nil
		},
	}
}

// checkReport turns verification errors into a non-zero exit.
func (a *app) checkReport(report *entity.Report) error {
	if n := len(report.Errors); n > 0 {
		return a.fail(fmt.Errorf("verification found %d errors", n))
	}
	return nil
}

// fail logs err through the command logger. Errors raised before the logger
// exists are printed by main.
func (a *app) fail(err error) error {
	if a.logger != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Command failed", zap.Error(err))
	}
	return err
}
