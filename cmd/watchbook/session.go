package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"watchbook/internal/app"
	"watchbook/internal/cli"
	"watchbook/internal/config"
	"watchbook/internal/log"
)

var envFile string

var commands = []struct {
	cmd   subcommands.Command
	group string
}{
	{&exportCmd{}, "data"},
	{&importCmd{}, "data"},
	{&backupsCmd{}, "data"},
	{&restoreCmd{}, "data"},
	{&dumpCmd{}, "data"},
	{&statsCmd{}, "reports"},
	{&monthsCmd{}, "reports"},
	{&healthCmd{}, "operations"},
	{&syncCmd{}, "operations"},
	{&monitorCmd{}, "operations"},
}

const shutdownTimeout = 30 * time.Second

// session is one opened application for the duration of a command.
type session struct {
	app    *app.App
	cfg    *config.Config
	logger *log.Logger
}

func open(ctx context.Context) (*session, error) {
	cli.LoadEnvFile(envFile)
	logger := cli.SetupLogger(os.Stderr, os.Getenv("LOG_LEVEL"))

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		return nil, err
	}
	a, err := app.FromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start application", log.FieldError, err)
		return nil, err
	}
	return &session{app: a, cfg: cfg, logger: logger}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.Close(ctx); err != nil {
		s.logger.Error("Shutdown error", log.FieldError, err)
	}
}

func failure(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func usage(f interface{ Usage() string }, msg string) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s\n\n%s", msg, f.Usage())
	return subcommands.ExitUsageError
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}
