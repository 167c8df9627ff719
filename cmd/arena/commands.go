package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"arena-tracker/internal/domain"
	"arena-tracker/internal/service"

	"github.com/goccy/go-json"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"identity": runIdentity,
	"sync":     runSync(false),
	"more":     runSync(true),
	"watch":    runWatch,
	"drop":     runDrop,
	"progress": runProgress,
	"toggle":   runToggle,
	"history":  runHistory,
	"scope":    runScope,
	"status":   runStatus,
	"export":   runExport,
	"import":   runImport,
	"clear":    runClear,
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// stdinConfirmer asks on stderr and accepts y or yes.
type stdinConfirmer struct {
	assumeYes bool
}

func (c stdinConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if c.assumeYes {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-answer:
		return a == "y" || a == "yes", nil
	}
}

func runIdentity(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: arena identity <gameName> <tagLine>")
	}
	if err := a.engine.SetIdentity(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("tracking %s#%s\n", strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
	return nil
}

func runSync(loadMore bool) command {
	return func(ctx context.Context, a *app, _ []string) error {
		result, err := a.engine.Sync(ctx, loadMore)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", a.cfg.AutoRefreshInterval, "time between refreshes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return errors.New("interval must be positive")
	}

	unsubscribe := a.engine.Subscribe(func(p domain.ArenaProgress) {
		fmt.Printf("%s progress: %d wins, %d top 4s, %d played\n",
			time.Now().Format(time.TimeOnly), len(p.Wins), len(p.Top4s), len(p.FirstPlays))
	})
	defer unsubscribe()

	a.logger.Info().Dur("interval", *interval).Msg("watching for new matches")
	return a.engine.Watch(ctx, *interval)
}

func runDrop(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.engine.DropPastGames(ctx, fs.Arg(0), stdinConfirmer{assumeYes: *yes})
	if errors.Is(err, service.ErrNotConfirmed) {
		fmt.Println("nothing dropped")
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runProgress(_ context.Context, a *app, _ []string) error {
	return printJSON(a.engine.Progress())
}

func runToggle(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: arena toggle <firstPlays|top4s|wins> <champion>")
	}
	progress, err := a.engine.ToggleProgress(ctx, service.ProgressKind(args[0]), args[1])
	if err != nil {
		return err
	}
	return printJSON(progress)
}

func runHistory(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of matches to print, 0 for all")
	champion := fs.String("champion", "", "only matches played with this champion")
	if err := fs.Parse(args); err != nil {
		return err
	}

	printed := 0
	for _, m := range a.engine.History() {
		if *champion != "" && !strings.EqualFold(m.Champion, *champion) {
			continue
		}
		if *limit > 0 && printed == *limit {
			break
		}
		score := "-"
		if m.Score != nil {
			score = strconv.Itoa(*m.Score)
		}
		fmt.Printf("%s  %-16s #%d  score %-4s %s\n",
			time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04"), m.Champion, m.Placement, score, m.MatchID)
		printed++
	}
	return nil
}

func runScope(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return printJSON(a.engine.State().Scope)
	}
	limit := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[1], err)
		}
		limit = n
	}
	if _, err := a.engine.SetHistoryScope(ctx, domain.NewHistoryScope(args[0], limit)); err != nil {
		return err
	}
	return printJSON(a.engine.State().Scope)
}

func runStatus(_ context.Context, a *app, _ []string) error {
	return printJSON(a.engine.State())
}

func runExport(ctx context.Context, a *app, args []string) error {
	path := service.DefaultFileName(time.Now())
	if len(args) > 0 {
		path = args[0]
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := a.engine.Export(ctx, f); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: arena import <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	if err := a.engine.Import(ctx, f); err != nil {
		return err
	}
	fmt.Printf("restored %d matches\n", a.engine.State().HistoryLen)
	return nil
}

func runClear(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	matchesOnly := fs.Bool("matches-only", false, "keep progress and the match cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt := "Clear all match data, progress and the match cache?"
	if *matchesOnly {
		prompt = "Clear the stored match history?"
	}
	ok, err := stdinConfirmer{assumeYes: *yes}.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("nothing cleared")
		return nil
	}

	if *matchesOnly {
		return a.engine.ClearMatches(ctx)
	}
	return a.engine.ClearAll(ctx)
}
