package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-quill/internal/cache"
	"github.com/23skdu/longbow-quill/internal/client"
	"github.com/23skdu/longbow-quill/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and Arrow Flight encode service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	enc, err := openEncoder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = enc.Close() }()

	var forwarder Forwarder
	if cfg.Forward.Addr != "" {
		fc, err := client.NewFlightClient(cfg.Forward.Addr)
		if err != nil {
			return err
		}
		defer func() { _ = fc.Close() }()
		breaker := client.NewCircuitBreaker("longbow", cfg.Forward.MaxFailures, time.Duration(cfg.Forward.Cooldown)*time.Second)
		forwarder = client.NewForwarder(fc, breaker, cfg.Forward.Dataset)
		log.Info().Str("addr", cfg.Forward.Addr).Str("dataset", cfg.Forward.Dataset).Msg("Forwarding to Longbow")
	}

	var vc cache.VectorCache
	if cfg.Server.CacheEntries > 0 {
		vc = cache.NewMapCache(cfg.Server.CacheEntries)
	}

	srv := NewServer(enc, forwarder, vc, cfg.Server.MaxConcurrent)
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", cfg.Server.ListenAddr).
			Str("language", enc.Language()).
			Int("vocab_size", enc.VocabSize()).
			Int64("max_concurrent", cfg.Server.MaxConcurrent).
			Msg("Starting Quill Server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.FlightAddr != "" {
		fs, err := newFlightServer(cfg.Server.FlightAddr, srv)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info().Str("addr", fs.Addr().String()).Msg("Starting Quill Flight Server")
			return fs.Serve()
		})
		g.Go(func() error {
			<-ctx.Done()
			fs.Shutdown()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info().Dur("timeout", timeout).Msg("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
