package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/pdf-chat/internal/adapters/cli"
	"github.com/kirillkom/pdf-chat/internal/bootstrap"
	"github.com/kirillkom/pdf-chat/internal/config"
	"github.com/kirillkom/pdf-chat/internal/observability/logging"
)

const serviceName = "pdfchatctl"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, "warn"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, bootstrap.Observers{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	root := cli.NewRootCommand(cli.Deps{
		Lookup:    app.Documents,
		Documents: app.DocumentsUC,
	})
	return root.ExecuteContext(ctx)
}
