// Command callintel runs the call intelligence service: the HTTP API, the
// transcript ingest consumer and one-off digest generation.
//
// @title        Call Intelligence API
// @version      1.0
// @description  Transcript search, per-call analysis and team digests.
// @BasePath     /api/v1
package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/call-intel-backend/internal/config"
	"github.com/tbourn/call-intel-backend/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	cfg := new(config.Config)

	root := &cobra.Command{
		Use:           "callintel",
		Short:         "Call intelligence pipeline: transcripts, analysis and team digests",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// a missing .env is normal outside local development
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = loaded
			sysutil.SetupLogger(cfg.LogPretty, nil)
			sysutil.SetLogLevel(cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(serveCmd(cfg))
	root.AddCommand(digestCmd(cfg))
	root.AddCommand(ingestCmd(cfg))
	return root
}
