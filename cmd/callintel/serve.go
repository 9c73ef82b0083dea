package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/call-intel-backend/internal/config"
	httpapi "github.com/tbourn/call-intel-backend/internal/http"
	"github.com/tbourn/call-intel-backend/internal/ingest"
	"github.com/tbourn/call-intel-backend/internal/observability"
	"github.com/tbourn/call-intel-backend/internal/sysutil"
)

const shutdownTimeout = 20 * time.Second

func serveCmd(cfg *config.Config) *cobra.Command {
	var withIngest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. When AMQP_URL is set the transcript ingest
consumer runs in the same process unless --ingest=false.

Examples:
  callintel serve
  STORE_DRIVER=sqlite DB_PATH=./dev.db callintel serve --ingest=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfg, withIngest)
		},
	}
	cmd.Flags().BoolVar(&withIngest, "ingest", true, "run the AMQP consumer when AMQP_URL is set")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, withIngest bool) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Transcripts: a.transcripts,
		Pipeline:    a.pipeline,
		Store:       a.store,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Str("store", cfg.Store.Driver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		a.purgeLoop(gctx)
		return nil
	})

	if withIngest && cfg.AMQP.URL != "" {
		c, err := ingest.Dial(ingest.Options{
			URL:      cfg.AMQP.URL,
			Queue:    cfg.AMQP.Queue,
			Prefetch: cfg.AMQP.Prefetch,
		}, a.transcripts, sysutil.Component("ingest"))
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		defer c.Close()
		g.Go(func() error { return c.Run(gctx) })
	}

	return g.Wait()
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
