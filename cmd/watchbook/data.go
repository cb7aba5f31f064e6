package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/subcommands"

	"watchbook/internal/envelope"
	"watchbook/internal/state"
	"watchbook/internal/store"
)

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export all data as a backup bundle" }
func (*exportCmd) Usage() string {
	return `watchbook export [-o <file>]

  Writes the bundle to the configured export destination, or to <file>.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "write the bundle to this local file instead")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	if c.output == "" {
		name, err := s.app.Envelope.ExportTo(ctx, s.app.Files)
		if err != nil {
			return failure(err)
		}
		fmt.Println(name)
		return subcommands.ExitSuccess
	}

	data, err := s.app.Envelope.Export(ctx)
	if err != nil {
		return failure(err)
	}
	if err := os.WriteFile(c.output, data, 0o644); err != nil {
		return failure(err)
	}
	if err := s.app.Envelope.MarkExported(ctx); err != nil {
		return failure(err)
	}
	fmt.Println(c.output)
	return subcommands.ExitSuccess
}

type importCmd struct {
	local bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "replace all data with a backup bundle" }
func (*importCmd) Usage() string {
	return `watchbook import [-local] <name>

  Reads <name> from the export destination, or from the local
  filesystem with -local, and replaces the current data with it.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.local, "local", false, "read the bundle from a local path")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c, "import needs exactly one bundle name")
	}
	name := f.Arg(0)

	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	var res envelope.Result
	if c.local {
		var data []byte
		if data, err = os.ReadFile(name); err != nil {
			return failure(err)
		}
		res, err = s.app.Envelope.Import(ctx, data)
	} else {
		res, err = s.app.Envelope.ImportFrom(ctx, s.app.Files, name)
	}
	if err != nil {
		return failure(err)
	}
	fmt.Printf("Imported version %s: %d months, %d orders, %d clients, %d inventory items\n",
		res.Version, res.Months, res.Orders, res.Clients, res.Inventory)
	if res.ConvertedOrders+res.ConvertedExpenses > 0 {
		fmt.Printf("Converted from BGN: %d orders, %d expenses\n", res.ConvertedOrders, res.ConvertedExpenses)
	}
	if res.ReassignedIDs > 0 {
		fmt.Printf("Reassigned ids: %d\n", res.ReassignedIDs)
	}
	return subcommands.ExitSuccess
}

type backupsCmd struct {
	key string
}

func (*backupsCmd) Name() string     { return "backups" }
func (*backupsCmd) Synopsis() string { return "list rolling backups, newest first" }
func (*backupsCmd) Usage() string {
	return `watchbook backups [-key <key>]
`
}

func (c *backupsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "key", "", "only list backups of this key")
}

func (c *backupsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	all := map[string][]store.Record{}
	if c.key != "" {
		recs, err := s.app.Store.Vault().ListBackups(ctx, c.key)
		if err != nil {
			return failure(err)
		}
		all[c.key] = recs
	} else if all, err = s.app.Store.Vault().ListAll(ctx); err != nil {
		return failure(err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTIMESTAMP\tTIME\tSIZE")
	for _, k := range keys {
		for _, r := range all[k] {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", k, r.Timestamp, r.Time().In(s.app.Currency.Location()).Format(time.DateTime), r.Size)
		}
	}
	if err := w.Flush(); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}

type restoreCmd struct{}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "restore one key from a backup" }
func (*restoreCmd) Usage() string {
	return `watchbook restore <key> <timestamp>

  Writes the backup of <key> taken at <timestamp> (epoch milliseconds,
  see "watchbook backups") back as the current value.
`
}

func (*restoreCmd) SetFlags(*flag.FlagSet) {}

func (c *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return usage(c, "restore needs a key and a timestamp")
	}
	key := f.Arg(0)
	ts, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		return usage(c, fmt.Sprintf("invalid timestamp %q", f.Arg(1)))
	}

	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	if _, err := s.app.Store.Restore(ctx, key, ts); err != nil {
		return failure(err)
	}
	if err := s.app.Hub.Load(ctx); err != nil {
		return failure(err)
	}
	fmt.Printf("Restored %s from %s\n", key, time.UnixMilli(ts).In(s.app.Currency.Location()).Format(time.DateTime))
	return subcommands.ExitSuccess
}

type dumpCmd struct {
	key  string
	json bool
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "print the loaded state for debugging" }
func (*dumpCmd) Usage() string {
	return `watchbook dump [-key <key>] [-json]
`
}

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "key", "", "print only this persisted key")
	f.BoolVar(&c.json, "json", false, "print the persisted JSON encoding")
}

func (c *dumpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		return failure(err)
	}
	defer s.close()

	snap := s.app.Hub.Snapshot()
	keys := state.Keys
	if c.key != "" {
		keys = []string{c.key}
	}

	if !c.json && c.key == "" {
		spew.Fdump(os.Stdout, snap)
		return subcommands.ExitSuccess
	}
	for _, k := range keys {
		data, err := snap.Encode(k)
		if err != nil {
			return failure(err)
		}
		if !c.json {
			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				return failure(err)
			}
			spew.Fdump(os.Stdout, v)
			continue
		}
		fmt.Printf("%s: %s\n", k, data)
	}
	return subcommands.ExitSuccess
}
