package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/splittab/splittab-backend/internal/liveview"
	"github.com/splittab/splittab-backend/pkg/logger"
)

func main() {
	url := flag.String("url", "http://localhost:8080", "API base url")
	token := flag.String("token", "", "share token of the bill to watch")
	sessionPath := flag.String("session", defaultSessionPath(), "path of the persisted session id")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "missing -token")
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "watch",
		Level:       logger.ParseLevel(*logLevel),
		Output:      os.Stderr,
	})

	sessionStore, err := liveview.NewSessionStore(*sessionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store: %v\n", err)
		os.Exit(1)
	}
	sessionID, err := sessionStore.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading session: %v\n", err)
		os.Exit(1)
	}

	source, err := liveview.NewHTTPSource(*url, sessionID, logg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "source: %v\n", err)
		os.Exit(1)
	}

	watcher, err := liveview.NewWatcher(
		liveview.Params{
			Source:     source,
			ShareToken: *token,
			SessionID:  sessionID,
			Logger:     logg,
		},
		liveview.Options{},
		liveview.Handlers{
			OnState:     printState,
			OnSnapshot:  printSnapshot,
			OnHighlight: printHighlights,
			OnComplete:  printComplete,
		},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("watching bill %s as session %s\n", *token, sessionID)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "watcher stopped: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("bye")
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".splittab-session"
	}
	return filepath.Join(home, ".splittab", "session")
}

func printState(state liveview.ConnState) {
	fmt.Printf("-- %s\n", state)
}

func printSnapshot(snap liveview.Snapshot) {
	fmt.Println()
	for _, row := range snap.Items {
		marker := " "
		if row.FullyAllocated {
			marker = "✓"
		}
		line := fmt.Sprintf("%s %-24s %6.2f left of %.2f  (%d.%02d each)",
			marker, row.Item.Name, row.Remaining, row.Item.Quantity,
			row.Item.PriceCents/100, row.Item.PriceCents%100)
		if row.Oversold > 0 {
			line += fmt.Sprintf("  OVERSOLD by %.2f", row.Oversold)
		}
		fmt.Println(line)
	}

	if len(snap.LiveClaims) > 0 {
		holders := make([]string, 0, len(snap.LiveClaims))
		for _, claim := range snap.LiveClaims {
			holders = append(holders, fmt.Sprintf("%s (%.2f)", claim.DisplayName, claim.Quantity))
		}
		sort.Strings(holders)
		fmt.Printf("  picking now: %s\n", strings.Join(holders, ", "))
	}

	for _, sel := range snap.Selections {
		paid := " "
		if sel.Selection.Paid {
			paid = "$"
		}
		fmt.Printf("%s %-24s total %d.%02d\n", paid, sel.Selection.DisplayName,
			sel.TotalCents/100, sel.TotalCents%100)
	}
}

func printHighlights(highlights []liveview.Highlight) {
	for _, h := range highlights {
		fmt.Printf("  * item %s just changed\n", h.ItemID)
	}
}

func printComplete() {
	fmt.Println("== everything claimed, bill fully allocated ==")
}
