package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/livefir/zealtime/internal/config"
	"github.com/livefir/zealtime/internal/hub"
)

func runServe(ctx context.Context, args []string) error {
	var configPath string
	fs := newFlagSet("serve", "serve [--addr HOST:PORT] [--db PATH] [--demo FILE]")
	addConfigFlag(fs, &configPath)
	addr := fs.String("addr", "", "listen address (default from config, 0.0.0.0:8765)")
	dbPath := fs.String("db", "", "sqlite database that keeps the variable snapshot")
	demo := fs.String("demo", "", "publish demo variables tracking whether FILE exists")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if fs.Changed("addr") {
		cfg.Serve.Addr = *addr
	}
	if fs.Changed("db") {
		cfg.Serve.Database = *dbPath
	}
	if fs.Changed("demo") {
		cfg.Serve.Demo = *demo
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return serve(ctx, cfg.Serve, log.Default())
}

func serve(ctx context.Context, cfg config.ServeConfig, logger *log.Logger) error {
	opts := []hub.Option{hub.WithLogger(logger), hub.WithClientTTL(cfg.ClientTTL)}
	if cfg.Database != "" {
		store, err := hub.OpenStore(cfg.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, hub.WithStore(store))
	}

	h, err := hub.New(ctx, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", h)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("hub: listening on ws://%s", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		interval := cfg.ClientTTL / 2
		if interval <= 0 {
			interval = 30 * time.Second
		}
		h.Run(ctx, interval)
		return nil
	})
	if cfg.Demo != "" {
		g.Go(func() error {
			feed := hub.NewDemoFeed(cfg.Demo, 0)
			feed.Interval = cfg.DemoInterval
			logger.Printf("hub: demo feed watching %s", cfg.Demo)
			if err := feed.Run(ctx, h); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
