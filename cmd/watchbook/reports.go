package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"watchbook/internal/core"
	"watchbook/internal/reports"
)

type statsCmd struct {
	month string
	json  bool
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "display the monthly and all-time report" }
func (*statsCmd) Usage() string {
	return `watchbook stats [-m <YYYY-MM>] [-json]

  Displays revenue, expenses and profit of one month together with the
  all-time totals and the profit trend.
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "month to report (defaults to the current month)")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a rendered report")
}

func (c *statsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var month core.MonthKey
	if c.month != "" {
		m, err := core.ParseMonthKey(c.month)
		if err != nil {
			return usage(c, err.Error())
		}
		month = m
	}

	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	ms := s.app.Reports.MonthlyStats(month)
	at := s.app.Reports.AllTimeStatsWithTrends()

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Month   reports.MonthlyStats `json:"month"`
			AllTime reports.AllTimeStats `json:"allTime"`
		}{ms, at}); err != nil {
			return failure(err)
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(reports.Markdown(ms, at))
	return subcommands.ExitSuccess
}

type monthsCmd struct {
	selected string
}

func (*monthsCmd) Name() string     { return "months" }
func (*monthsCmd) Synopsis() string { return "list months with data or select the current one" }
func (*monthsCmd) Usage() string {
	return `watchbook months [-select <YYYY-MM>]
`
}

func (c *monthsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.selected, "select", "", "make this month the current one")
}

func (c *monthsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	if c.selected != "" {
		m, err := core.ParseMonthKey(c.selected)
		if err != nil {
			return usage(c, err.Error())
		}
		if err := s.app.Months.Select(ctx, m); err != nil {
			return failure(err)
		}
	}

	current := s.app.Months.Current()
	for _, m := range s.app.Months.Available() {
		marker := " "
		if m.Key == current {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, m.Key, m.Name)
	}
	return subcommands.ExitSuccess
}
