package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		port       string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the apmcore demo service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is fine, a malformed one is not
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if dev {
				cfg.Logging.Development = true
				cfg.Logging.Level = "debug"
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML or TOML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.StringVarP(&port, "port", "p", "8000", "HTTP port (overrides config)")
	flags.BoolVar(&dev, "dev", false, "development logging")

	return cmd
}
