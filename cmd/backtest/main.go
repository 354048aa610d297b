// Command backtest replays a strategy schedule on the deterministic clock
// over a time range and prints the resulting event stream. The same strategy
// code runs unchanged under cmd/traderd against the live clock.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/ident"
)

func main() {
	flagFrom := flag.String("from", "2020-01-01T00:00:00Z", "Backtest start instant (RFC3339)")
	flagTo := flag.String("to", "2020-01-02T00:00:00Z", "Backtest end instant (RFC3339)")
	flagInterval := flag.Duration("interval", time.Hour, "Rebalance timer interval")
	flagCron := flag.String("cron", "", "Optional cron spec for an additional timer")
	flagStep := flag.Duration("step", 6*time.Hour, "Advance step size")

	flag.Parse()

	from, err := time.Parse(time.RFC3339, *flagFrom)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
		os.Exit(2)
	}
	to, err := time.Parse(time.RFC3339, *flagTo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
		os.Exit(2)
	}
	if !from.Before(to) {
		fmt.Fprintln(os.Stderr, "-from must precede -to")
		os.Exit(2)
	}

	tc := clock.NewTestClockAt(from)

	fires := make(map[string]int)
	handler := func(ev clock.TimeEvent) {
		fires[ev.Label.Value()]++
	}

	if err := tc.SetTimer(ident.Label("rebalance"), *flagInterval, time.Time{}, time.Time{}, handler); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set rebalance timer: %v\n", err)
		os.Exit(1)
	}
	if *flagCron != "" {
		if err := tc.SetCronTimer(ident.Label("cron"), *flagCron, time.Time{}, handler); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set cron timer: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Backtest %s -> %s (step %s)\n", from.Format(time.RFC3339), to.Format(time.RFC3339), *flagStep)

	total := 0
	for target := from.Add(*flagStep); ; target = target.Add(*flagStep) {
		if target.After(to) {
			target = to
		}
		for _, d := range tc.AdvanceTime(target) {
			fmt.Printf("  %s  %-12s\n", d.Event.Timestamp.Format(time.RFC3339), d.Event.Label.Value())
			d.Deliver()
			total++
		}
		if target.Equal(to) {
			break
		}
	}

	fmt.Printf("\n%d events delivered:\n", total)
	for label, n := range fires {
		fmt.Printf("  %-12s %d\n", label, n)
	}
}
