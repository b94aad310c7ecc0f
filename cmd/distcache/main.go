package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distcache/cmd/distcache/commands"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cli commands.CLI
	global := &commands.Global{Ctx: ctx}
	parser := kong.Parse(&cli,
		kong.Name("distcache"),
		kong.Description("Build a merged distribution archive and publish it to a git distribution cache."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	err := parser.Run(global, &cli)
	stop()
	if err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
		os.Exit(errors.ExitGeneral)
	}
}
