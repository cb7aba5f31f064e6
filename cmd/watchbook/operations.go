package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"watchbook/internal/cli"
	"watchbook/internal/health"
	apphttp "watchbook/internal/http"
	"watchbook/internal/log"
)

type healthCmd struct {
	json bool
}

func (*healthCmd) Name() string     { return "health" }
func (*healthCmd) Synopsis() string { return "display the storage and backup dashboard" }
func (*healthCmd) Usage() string {
	return `watchbook health [-json]
`
}

func (c *healthCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print JSON instead of a rendered dashboard")
}

func (c *healthCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	d, err := s.app.Monitor.Dashboard(ctx)
	if err != nil {
		return failure(err)
	}
	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return failure(err)
		}
	} else {
		printMarkdown(dashboardMarkdown(d))
	}
	if d.Level == health.LevelAtRisk {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func dashboardMarkdown(d health.Dashboard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Защита на данните: %s\n\n", d.Level)
	b.WriteString("| Показател | Стойност |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Хранилище | %s |\n", d.Health.Status)
	if d.Health.QuotaBytes > 0 {
		fmt.Fprintf(&b, "| Използвано | %d / %d B (%.1f%%) |\n", d.Health.UsedBytes, d.Health.QuotaBytes, d.Health.UsageRatio*100)
	} else {
		fmt.Fprintf(&b, "| Използвано | %d B |\n", d.Health.UsedBytes)
	}
	fmt.Fprintf(&b, "| Резервни копия | %d |\n", d.BackupCount)
	if d.DaysSinceExport < 0 {
		b.WriteString("| Последен експорт | никога |\n")
	} else {
		fmt.Fprintf(&b, "| Последен експорт | преди %d дни |\n", d.DaysSinceExport)
	}
	if len(d.CorruptKeys) > 0 {
		fmt.Fprintf(&b, "| Повредени ключове | %s |\n", strings.Join(d.CorruptKeys, ", "))
	}
	if len(d.Recommendations) > 0 {
		b.WriteString("\n## Препоръки\n\n")
		for _, r := range d.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

type syncCmd struct{}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "push all data to the remote row store" }
func (*syncCmd) Usage() string {
	return `watchbook sync
`
}

func (*syncCmd) SetFlags(*flag.FlagSet) {}

func (*syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	if s.app.Mirror == nil {
		return failure(errors.New("no remote backend configured (REMOTE_BACKEND)"))
	}
	if err := s.app.Mirror.SyncAll(ctx); err != nil {
		return failure(err)
	}
	fmt.Println("Remote rows are up to date")
	return subcommands.ExitSuccess
}

type monitorCmd struct {
	addr string
}

func (*monitorCmd) Name() string     { return "monitor" }
func (*monitorCmd) Synopsis() string { return "run the health monitor, operations endpoint and event forwarding" }
func (*monitorCmd) Usage() string {
	return `watchbook monitor [-addr <host:port>]

  Runs until interrupted. Serves /healthz, /readyz, /metrics,
  /api/dashboard and /api/stats, and forwards domain events when
  AMQP_URL is set.
`
}

func (c *monitorCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "operations endpoint address (defaults to METRICS_ADDR)")
}

func (c *monitorCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	ctx, cancel := cli.SignalContext(ctx, s.logger)
	defer cancel()

	addr := c.addr
	if addr == "" {
		addr = s.cfg.MetricsAddr
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := s.app.Monitor.Start(ctx); err != nil {
		return failure(err)
	}

	if s.app.Mirror != nil {
		g.Go(func() error {
			// Mirror failures are reported through notifications; keep running.
			if err := s.app.Mirror.SyncAll(ctx); err != nil {
				s.logger.Warn("Startup sync failed", log.FieldError, err)
			}
			return nil
		})
	}

	if s.app.Forwarder != nil {
		g.Go(func() error { return s.app.Forwarder.Run(ctx) })
	}

	g.Go(func() error { return runRollover(ctx, s.app.Rollover, s.cfg.HealthInterval, s.logger) })

	if addr != "" {
		srv, err := apphttp.NewServer(addr, apphttp.Deps{
			Registry: s.app.Registry,
			Monitor:  s.app.Monitor,
			Store:    s.app.Store,
			Reports:  s.app.Reports,
			Logger:   s.logger,
		})
		if err != nil {
			return failure(err)
		}
		g.Go(func() error {
			s.logger.Info("Serving operations endpoint", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("operations server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}
