package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studyhub/internal/config"
	"studyhub/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var envFile string

	cmd := &cobra.Command{
		Use:           "studyhubd",
		Short:         "Run the studyhub processing daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnvFile(strings.TrimSpace(envFile))
			gin.SetMode(gin.ReleaseMode)
			return run(cmd.Context(), strings.TrimSpace(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file with API keys (ignored when missing)")
	return cmd
}

// loadEnvFile populates unset environment variables from path.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func run(ctx context.Context, configPath string) error {
	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !exists {
		logging.WarnWithContext(logger, "config file not found; using defaults", "config_defaults",
			logging.String("path", resolved),
			logging.String(logging.FieldErrorHint, "run `studyhub config init` to create one"),
		)
	}

	rt, err := bootstrap(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.daemon.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-ctx.Done()
	logger.Info("studyhubd shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}
