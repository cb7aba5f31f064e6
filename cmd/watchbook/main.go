package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range commands {
		commander.Register(c.cmd, c.group)
	}

	flag.StringVar(&envFile, "env", ".env", "environment file loaded before the configuration")
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
