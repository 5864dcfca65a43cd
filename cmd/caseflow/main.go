// Package main is the entry point for the Caseflow engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlasprocure/caseflow/internal/config"
	"github.com/atlasprocure/caseflow/internal/engine"
	"github.com/atlasprocure/caseflow/internal/ipc"
	"github.com/atlasprocure/caseflow/internal/policy"
	"github.com/atlasprocure/caseflow/internal/store"
	"github.com/atlasprocure/caseflow/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("caseflow %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Resolve config path: --config flag > CASEFLOW_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("CASEFLOW_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		fatal(logger, "no config found. Place config.json next to the exe, use --config <path>, or set CASEFLOW_CONFIG.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(logger, fmt.Sprintf("load config: %v", err))
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(logger, fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()

	policies, err := policy.NewProvider(cfg.PolicyDir)
	if err != nil {
		fatal(logger, fmt.Sprintf("load policies: %v", err))
	}

	eng := engine.New(db, policies, worker.NewDefaultRegistry(), nil, nil, engine.Options{
		BudgetCeilingUnits:      cfg.BudgetCeilingUnits,
		IterationCeiling:        cfg.IterationCeiling,
		VisitedWindow:           cfg.VisitedWindow,
		FineCycleKey:            cfg.FineCycleKey,
		EscalateBelowConfidence: cfg.EscalateBelowConfidence,
	}, logger)

	srv := ipc.NewServer(&ipc.Handler{Engine: eng}, cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("caseflow engine listening", "addr", cfg.ListenAddr, "version", version)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return policy.Watch(ctx, policies, logger)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fatal(logger, fmt.Sprintf("engine stopped: %v", err))
	}
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}

func fatal(logger *slog.Logger, msg string) {
	logger.Error(msg)
	os.Exit(1)
}
