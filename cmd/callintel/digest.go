package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/call-intel-backend/internal/config"
	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/services"
)

func digestCmd(cfg *config.Config) *cobra.Command {
	var (
		period string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate a team digest and print it as JSON",
		Long: `Generate the team digest for a period and print it to stdout.
The result is cached exactly as if it had been requested over HTTP.

Periods: ` + strings.Join(services.Periods(), ", ") + `

Examples:
  callintel digest --period yesterday
  callintel digest --period this_week --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := contextOrBackground(cmd.Context())
			a, err := buildApp(ctx, *cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runDigest(ctx, a.pipeline, period, force, cmd)
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "today", "digest period")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even when a cached digest exists")
	return cmd
}

type digester interface {
	Digest(ctx context.Context, period string, force bool) (*domain.Digest, bool, error)
}

func runDigest(ctx context.Context, p digester, period string, force bool, cmd *cobra.Command) error {
	d, cached, err := p.Digest(ctx, period, force)
	if err != nil {
		return fmt.Errorf("digest %s: %w", period, err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return err
	}
	if cached {
		fmt.Fprintln(cmd.ErrOrStderr(), "(served from cache; use --force to regenerate)")
	}
	return nil
}
