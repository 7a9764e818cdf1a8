package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/user/calbot/internal/auth"
	"github.com/user/calbot/internal/calendar"
	"github.com/user/calbot/internal/dialog"
	"github.com/user/calbot/internal/dispatch"
	"github.com/user/calbot/internal/session"
	"github.com/user/calbot/internal/telegram"
	"github.com/user/calbot/internal/token"
	"github.com/user/calbot/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the calendar bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured; run 'calbot setup' or set TELEGRAM_BOT_TOKEN")
	}
	oauth, err := oauthConfig(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tokens := token.NewStore(filepath.Join(cfg.DataDir, "tokens"))
	flow := auth.New(oauth)
	sessions := session.New(oauth, tokens, flow.Authorize,
		func(ctx context.Context, src oauth2.TokenSource) (types.Calendar, error) {
			return calendar.NewClient(ctx, src, cfg.Google.Calendar)
		})
	engine := dialog.New(sessions)
	queue := dispatch.NewQueue(int64(cfg.MaxConcurrent))

	adapter, err := telegram.New(cfg.Telegram.Token, engine, queue)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	go adapter.Start(ctx)

	slog.Info("calbot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"calendar", cfg.Google.Calendar,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slog.Info("shutting down", "signal", sig)
	return nil
}
