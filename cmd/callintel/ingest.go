package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbourn/call-intel-backend/internal/config"
	"github.com/tbourn/call-intel-backend/internal/ingest"
	"github.com/tbourn/call-intel-backend/internal/sysutil"
)

func ingestCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Consume completed transcripts from AMQP_QUEUE until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.AMQP.URL == "" {
				return errors.New("AMQP_URL is not set")
			}
			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, *cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			go a.purgeLoop(ctx)

			c, err := ingest.Dial(ingest.Options{
				URL:      cfg.AMQP.URL,
				Queue:    cfg.AMQP.Queue,
				Prefetch: cfg.AMQP.Prefetch,
			}, a.transcripts, sysutil.Component("ingest"))
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Run(ctx)
		},
	}
}
