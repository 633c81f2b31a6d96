package main

// Poll an analysis until it finishes:
//   go run ./cmd/poll -api http://localhost:8080 -token $JWT <analysis-id>

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supercv-backend/internal/poller"
)

func main() {
	os.Exit(run())
}

func run() int {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	token := flag.String("token", os.Getenv("SUPERCV_TOKEN"), "bearer token (optional for anonymous records)")
	initial := flag.Duration("initial", time.Second, "first wait between reads")
	maxWait := flag.Duration("max-wait", 10*time.Second, "cap on the wait between reads")
	attempts := flag.Int("max-attempts", 60, "give up after this many reads")
	verbose := flag.Bool("v", false, "print every intermediate status")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: poll [flags] <analysis-id>")
		return 2
	}
	id := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := poller.DefaultConfig()
	cfg.Initial = *initial
	cfg.Max = *maxWait
	cfg.MaxAttempts = *attempts

	p := poller.New(poller.NewHTTPFetcher(*apiURL, *token), cfg)
	if *verbose {
		p.OnSnapshot = func(s poller.Snapshot) {
			fmt.Fprintf(os.Stderr, "%s %s\n", time.Now().Format(time.TimeOnly), s.Status)
		}
	}

	snap, err := p.Poll(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return exitCode(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, poller.ErrNotFound):
		return 4
	case errors.Is(err, poller.ErrGaveUp):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, poller.ErrNotFound):
		return "analysis not found"
	case errors.Is(err, poller.ErrGaveUp):
		return fmt.Sprintf("gave up: %v", err)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return fmt.Sprintf("poll failed: %v", err)
	}
}
