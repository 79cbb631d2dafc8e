package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/markis/gpt-markup-preview/internal/args"
	"github.com/markis/gpt-markup-preview/internal/client"
	"github.com/markis/gpt-markup-preview/internal/config"
	"github.com/markis/gpt-markup-preview/internal/credential"
	"github.com/markis/gpt-markup-preview/internal/logging"
	"github.com/markis/gpt-markup-preview/internal/preview"
	"github.com/markis/gpt-markup-preview/internal/render"
	"github.com/markis/gpt-markup-preview/internal/run"
	"github.com/markis/gpt-markup-preview/internal/stream"
)

const exitCancelled = 130

// main function to parse arguments and initiate the chat request.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context) int {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	a, err := args.ParseArgs(ctx, *cfg, os.Args[1:], os.Stdin)
	if errors.Is(err, args.ErrNoRun) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	logger := logging.New(logging.WithDebug(a.Debug), logging.WithJSON(a.JSONLog))
	slog.SetDefault(logger)

	apiKey, err := resolveAPIKey(cfg)
	if err != nil {
		logger.Error("no API key", "error", err)
		return 1
	}

	renderer, err := render.NewTerminalRenderer(os.Stdout, a.UsePlainText, cfg.Render.Wrap, cfg.Render.Theme)
	if err != nil {
		logger.Error("failed to set up output", "error", err)
		return 1
	}

	c := client.New(cfg, apiKey, client.WithLogger(logger)).WithModel(a.Model)
	acc := stream.NewAccumulator()
	acc.Observe(renderer.Update)
	runner := run.NewRunner(c, acc, logger)

	prompt := a.Prompt()
	logger.Debug("starting run", "model", c.Model(), "command", a.Command)
	result := runner.Run(ctx, c.Messages(prompt))

	// Partial output stays visible whatever the outcome.
	if err := renderer.Finish(result.Output); err != nil {
		logger.Error("failed to render output", "error", err)
	}

	switch {
	case result.Cancelled:
		fmt.Fprintln(os.Stderr, "cancelled")
		return exitCancelled
	case result.Failed():
		fmt.Fprintln(os.Stderr, "Error:", result.Err)
		return 1
	}

	if !a.NoPreview {
		if err := writePreview(logger, a.PreviewPath, prompt, result); err != nil {
			logger.Error("failed to write preview", "error", err)
			return 1
		}
	}
	return 0
}

func resolveAPIKey(cfg *config.Config) (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}

	// Stdin may carry the prompt, so ask on the terminal itself when there is one.
	in := os.Stdin
	if tty, err := os.Open("/dev/tty"); err == nil {
		defer tty.Close()
		in = tty
	}

	store := credential.NewStore(cfg.APIKeyEnv, dir,
		credential.WithPrompt(credential.TerminalPrompt(in, os.Stderr, cfg.APIKeyEnv)),
	)
	return store.APIKey()
}

func writePreview(logger *slog.Logger, path, prompt string, result run.Result) error {
	doc, err := preview.Build(prompt, result.Output)
	if errors.Is(err, preview.ErrNoTemplate) {
		logger.Warn("prompt has no html code block, skipping preview")
		return nil
	}
	if err != nil {
		return err
	}

	abs, err := preview.Write(path, doc)
	if err != nil {
		return err
	}
	logger.Info("preview written", "path", abs, "run", result.ID)
	return nil
}
