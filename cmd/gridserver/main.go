// Command gridserver serves a catalog-described table as a paged, sortable,
// filterable grid over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gnemet/gridquery/database/pgloader"
	"github.com/gnemet/gridquery/internal/config"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gridserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	catalogPath := flag.String("catalog", "", "Catalog JSON, overrides catalog.path")
	dataPath := flag.String("data", "", "JSON rows served in memory, overrides catalog.data")
	lang := flag.String("lang", "", "Label language, overrides application.language")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	if *verbose {
		ll.Set(slog.LevelDebug)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *catalogPath != "" {
		cfg.Catalog.Path = *catalogPath
	}
	if *dataPath != "" {
		cfg.Catalog.Data = *dataPath
	}
	if *lang != "" {
		cfg.Application.Language = *lang
	}
	if cfg.Catalog.Path == "" {
		return errors.New("no catalog configured")
	}

	srv := &server{
		catalogPath: cfg.Catalog.Path,
		dataPath:    cfg.Catalog.Data,
		lang:        cfg.Application.Language,
		pageSize:    cfg.Grid.PageSize,
		logger:      logger,
	}
	if cfg.Server.RateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst)
	}

	if srv.dataPath == "" {
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		srv.db = db
	}
	if err := srv.load(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("Grid server starting", "addr", httpServer.Addr, "catalog", srv.catalogPath, "app", cfg.Application.Name)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		paths := []string{srv.catalogPath}
		if srv.dataPath != "" {
			paths = append(paths, srv.dataPath)
		}
		return config.Watch(egCtx, func(path string) {
			if err := srv.load(egCtx); err != nil {
				logger.ErrorContext(egCtx, "Reload failed, keeping previous catalog", "path", path, "err", err)
				return
			}
			logger.InfoContext(egCtx, "Catalog reloaded", "path", path)
		}, paths...)
	})
	return eg.Wait()
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	d, ok := cfg.DefaultDatabase()
	if !ok {
		return nil, errors.New("no database configured and no data file given")
	}
	maxConns, idle, abs, err := cfg.PoolTuning()
	if err != nil {
		return nil, err
	}
	db, err := pgloader.Open(d.DSN(), maxConns, idle, abs)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", d.Name, err)
	}
	return db, nil
}
