// Command simcash runs a scenario file to completion and prints a
// settlement summary, the CLI-wiring shape cmd/simulate_lsm/main.go
// establishes (load config, run, print results).
package main

import (
	"flag"
	"fmt"
	"os"

	"simcash/internal/simcore"
	"simcash/pkg/config"
	"simcash/pkg/moneyfmt"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario YAML file")
	ticks := flag.Int("ticks", 0, "number of ticks to run (defaults to the scenario's episode_end_tick)")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: simcash -scenario path/to/scenario.yaml [-ticks N]")
		os.Exit(2)
	}

	cfg, err := config.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simcash: loading scenario: %v\n", err)
		os.Exit(1)
	}

	sim, err := simcore.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simcash: constructing simulation: %v\n", err)
		os.Exit(1)
	}

	n := *ticks
	if n <= 0 {
		n = int(cfg.EpisodeEndTick)
	}

	fmt.Printf("=========================================================\n")
	fmt.Printf("SIMCASH RTGS/LSM SETTLEMENT SIMULATION\n")
	fmt.Printf("=========================================================\n")
	fmt.Printf("Agents: %d   Ticks per day: %d   Running: %d ticks\n", len(cfg.Agents), cfg.TicksPerDay, n)
	fmt.Printf("---------------------------------------------------------\n")

	results, err := sim.Run(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simcash: run failed at tick %d: %v\n", sim.CurrentTick(), err)
		os.Exit(1)
	}

	var settled, eodCount int
	var totalCosts int64
	for _, r := range results {
		settled += r.SettledCount
		totalCosts += r.TotalCostsThisTick
		if r.EndOfDay {
			eodCount++
		}
	}

	fmt.Printf("Ran %d ticks, %d end-of-day boundaries crossed.\n", len(results), eodCount)
	fmt.Printf("Total settlements: %d\n", settled)
	fmt.Printf("Total costs accrued: %s\n", moneyfmt.FromCents(totalCosts).StringFixed(2))
	fmt.Printf("Final event log length: %d\n", sim.EventLogLen())

	for _, id := range sim.AgentIDs() {
		snap, err := sim.Agent(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %-16s balance=%s  collateral=%s  queue1=%d\n",
			snap.ID,
			moneyfmt.FromCents(snap.Balance).StringFixed(2),
			moneyfmt.FromCents(snap.PostedCollateral).StringFixed(2),
			snap.Queue1Size)
	}
}
