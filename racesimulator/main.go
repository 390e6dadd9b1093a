package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/race"
)

var (
	seed1      uint64
	seed2      uint64
	debug      bool
	times      uint
	endless    bool
	rosterPath string
)

func main() {
	flag.Uint64Var(&seed1, "seed1", 0, "First seed value")
	flag.Uint64Var(&seed2, "seed2", 0, "Second seed value")

	flag.UintVar(&times, "times", 0, "Amount of times to run the simulation each time with random seeds")
	flag.BoolVar(&endless, "endless", false, "Run the simulation an endless amount of times with random seeds until stopped")

	flag.StringVar(&rosterPath, "roster", "", "Roster YAML file, defaults to the embedded grid")
	flag.BoolVar(&debug, "debug", false, "Include debug logs")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logLevel := log.InfoLevel
	if debug {
		logLevel = log.DebugLevel
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           logLevel,
		ReportTimestamp: false,
	})

	roster := race.DefaultRoster()
	if rosterPath != "" {
		r, err := race.LoadRoster(rosterPath)
		if err != nil {
			logger.Fatal("load roster", "err", err)
		}
		roster = r
	}

	var failed bool
	switch {
	case endless:
		failed = runRandom(ctx, logger, roster, func(int) bool { return true })
	case times > 0:
		failed = runRandom(ctx, logger, roster, func(i int) bool { return i < int(times) })
	default:
		failed = runSeeded(ctx, logger, roster)
	}
	if failed {
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, logger *log.Logger, roster *race.Roster, s1, s2 uint64) bool {
	sim, err := NewSimulator(s1, s2, roster, V1Config(), logger)
	if err != nil {
		logger.Error("new simulator", "err", err)
		return true
	}
	if err := sim.Run(ctx); err != nil {
		logger.Error("invariant violated", "err", err, "seed1", s1, "seed2", s2)
		return true
	}
	return false
}

func runRandom(ctx context.Context, logger *log.Logger, roster *race.Roster, more func(i int) bool) bool {
	failed := false
	for i := 0; more(i); i++ {
		if runOnce(ctx, logger, roster, rand.Uint64(), rand.Uint64()) {
			failed = true
		}

		if err := ctx.Err(); err != nil {
			logger.Error(err)
			return failed
		}
	}
	return failed
}

func runSeeded(ctx context.Context, logger *log.Logger, roster *race.Roster) bool {
	wasSeed1Set := false
	wasSeed2Set := false

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed1" {
			wasSeed1Set = true
		}
		if f.Name == "seed2" {
			wasSeed2Set = true
		}
	})

	if !wasSeed1Set {
		seed1 = rand.Uint64()
	}
	if !wasSeed2Set {
		seed2 = rand.Uint64()
	}

	failed := runOnce(ctx, logger, roster, seed1, seed2)
	if err := ctx.Err(); err != nil {
		logger.Error(err)
	}
	return failed
}
