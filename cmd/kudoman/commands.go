package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/kudoman/internal/chart"
	"github.com/loykin/kudoman/internal/collector"
	"github.com/loykin/kudoman/internal/config"
	"github.com/loykin/kudoman/internal/history/sqlite"
	"github.com/loykin/kudoman/internal/horde"
	"github.com/loykin/kudoman/internal/lock"
	"github.com/loykin/kudoman/internal/logger"
	"github.com/loykin/kudoman/internal/metrics"
	"github.com/loykin/kudoman/internal/server"
	"github.com/loykin/kudoman/internal/store"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	Dir string // collector working directory
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "kudoman",
		Short: "AI Horde kudos collector",
		Long: `kudoman polls your AI Horde kudos balance on a fixed interval, appends it
to a CSV time series with rolling statistics, rotates gzip backups, and
renders a chart. One instance per working directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.Dir, "dir", "d", ".", "collector working directory")

	root.AddCommand(
		createRunCommand(flags),
		createStatusCommand(flags),
		createChartCommand(flags),
		createVersionCommand(),
	)
	return root
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the collector loop (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(flags)
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kudoman version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("kudoman " + version)
		},
	}
}

// createStatusCommand reports on the lock and store without acquiring
// anything, so it is safe to run next to a live collector.
func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the lock owner and store size for a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(flags.Dir)
			if err != nil {
				return err
			}
			tok, err := lock.ReadToken(filepath.Join(dir, config.LockFileName))
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Println("lock: none (no collector running)")
			case err != nil:
				return err
			default:
				fmt.Printf("lock: PID %d, acquired %s\n", tok.PID, tok.Acquired.Format(time.RFC3339))
			}

			log, closeLog := logger.New(slog.LevelWarn, "")
			defer func() { _ = closeLog() }()
			cfg, cfgErr := config.Load(dir, log)
			if cfgErr != nil && !isKeyError(cfgErr) {
				return cfgErr
			}
			samples, err := store.New(cfg.StorePath(), cfg.MAWindow).Samples()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println("store: none")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("store: %d samples\n", len(samples))
			if n := len(samples); n > 0 {
				fmt.Printf("latest: %d kudos at %s\n", samples[n-1].Kudos,
					time.Unix(int64(samples[n-1].Time), 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

// createChartCommand renders the chart once from the existing store. It does
// not need an API key and does not touch the lock.
func createChartCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chart",
		Short: "Render the chart once from the existing store",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(flags.Dir)
			if err != nil {
				return err
			}
			log, closeLog := logger.New(slog.LevelWarn, "")
			defer func() { _ = closeLog() }()
			cfg, cfgErr := config.Load(dir, log)
			if cfgErr != nil && !isKeyError(cfgErr) {
				return cfgErr
			}
			rows, err := store.New(cfg.StorePath(), cfg.MAWindow).Rows()
			if err != nil {
				return err
			}
			r := &chart.Renderer{
				Path:     cfg.ChartPath(),
				ShowMA:   cfg.ShowMA,
				ShowD1:   cfg.ShowD1,
				ShowMAD1: cfg.ShowMAD1,
			}
			if err := r.Render(rows); err != nil {
				return err
			}
			fmt.Printf("rendered %d samples to %s\n", len(rows), cfg.ChartPath())
			return nil
		},
	}
}

func runCollector(flags *GlobalFlags) error {
	dir, err := filepath.Abs(flags.Dir)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	// Config warnings surface through a bootstrap logger; the real logger
	// needs the configured level, which is only known after Load.
	bootLog, closeBoot := logger.New(slog.LevelInfo, "")
	cfg, err := config.Load(dir, bootLog)
	if err != nil {
		bootLog.Error(err.Error())
		_ = closeBoot()
		return &exitError{code: exitConfig, err: err}
	}
	_ = closeBoot()

	log, closeLog := logger.New(cfg.LogLevel, cfg.LogFile)
	defer func() { _ = closeLog() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	col := collector.New(cfg, log)

	if cfg.HistoryDSN != "" {
		sink, err := sqlite.New(cfg.HistoryDSN)
		if err != nil {
			log.Warn("history mirror disabled", "dsn", cfg.HistoryDSN, "error", err)
		} else {
			col.SetSink(sink)
			defer func() { _ = sink.Close() }()
		}
	}

	if cfg.Listen != "" {
		srv := server.NewServer(cfg.Listen, col.Store(), cfg.ChartPath())
		log.Info("status server listening", "addr", cfg.Listen)
		defer func() { _ = srv.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := col.Run(ctx); err != nil {
		log.Error(err.Error())
		return &exitError{code: classify(err), err: err}
	}
	return nil
}

func classify(err error) int {
	var conflict *lock.ConflictError
	switch {
	case errors.As(err, &conflict):
		return exitConflict
	case isKeyError(err) || isUnknownUser(err):
		return exitConfig
	default:
		return exitIO
	}
}

func isKeyError(err error) bool {
	return errors.Is(err, config.ErrMissingAPIKey) || errors.Is(err, config.ErrPlaceholderAPIKey)
}

func isUnknownUser(err error) bool {
	return errors.Is(err, horde.ErrUnknownUser)
}
