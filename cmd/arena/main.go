package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arena-tracker/internal/config"
	fxmodules "arena-tracker/internal/fx"
	"arena-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const usage = `usage: arena <command> [flags] [args]

commands:
  identity <gameName> <tagLine>   set the tracked player
  sync                            fetch the newest page of matches
  more                            load older matches
  watch [-interval 5m]            auto-refresh until interrupted
  drop [-yes] [matchID]           start a new season at matchID (newest if omitted)
  progress                        print champion progress
  toggle <kind> <champion>        flip a champion in firstPlays, top4s or wins
  history [-n 20] [-champion X]   print stored matches
  scope all|last_n [N]            choose which games count for progress
  status                          print engine state
  export [file]                   write a backup
  import <file>                   restore a backup
  clear [-yes] [-matches-only]    wipe local match data
`

type app struct {
	engine *service.Engine
	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var a app
	fxApp := fx.New(
		fxmodules.Module,
		fx.NopLogger,
		fx.Populate(&a.engine, &a.cfg, &a.logger),
	)
	if err := fxApp.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to start: %v\n", err)
		os.Exit(1)
	}

	err := cmd(ctx, &a, os.Args[2:])

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if stopErr := fxApp.Stop(stopCtx); stopErr != nil {
		a.logger.Warn().Err(stopErr).Msg("shutdown failed")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
