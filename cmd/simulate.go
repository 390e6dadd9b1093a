package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
)

type simulateOptions struct {
	seed1   uint64
	seed2   uint64
	roster  string
	disrupt []string
	events  bool
	debug   bool
}

func newSimulateCommand() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a headless race and print the classification",
		Example: `  pitwall simulate --seed1 1 --seed2 2
  pitwall simulate --disrupt 12:rain:heavy --disrupt 30:major_crash --events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed1") {
				opts.seed1 = rand.Uint64()
			}
			if !cmd.Flags().Changed("seed2") {
				opts.seed2 = rand.Uint64()
			}
			return runSimulate(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.seed1, "seed1", 0, "First seed value, random when unset")
	cmd.Flags().Uint64Var(&opts.seed2, "seed2", 0, "Second seed value, random when unset")
	cmd.Flags().StringVar(&opts.roster, "roster", "", "Roster YAML file, defaults to the embedded grid")
	cmd.Flags().StringArrayVar(&opts.disrupt, "disrupt", nil, "Disruption as LAP:KIND[:INTENSITY], repeatable")
	cmd.Flags().BoolVar(&opts.events, "events", false, "Print the race events")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Include debug logs")
	return cmd
}

func loadRoster(path string) (*race.Roster, error) {
	if path == "" {
		return race.DefaultRoster(), nil
	}
	return race.LoadRoster(path)
}

// parseSchedule parses LAP:KIND[:INTENSITY] disruption flags.
func parseSchedule(raws []string, totalLaps int, at time.Time) (map[int]disruption.Event, error) {
	schedule := make(map[int]disruption.Event, len(raws))
	for _, raw := range raws {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("disruption %q: expected LAP:KIND[:INTENSITY]", raw)
		}

		lap, err := strconv.Atoi(parts[0])
		if err != nil || lap < 1 || lap > totalLaps {
			return nil, fmt.Errorf("disruption %q: lap must be between 1 and %d", raw, totalLaps)
		}
		if _, exists := schedule[lap]; exists {
			return nil, fmt.Errorf("disruption %q: lap %d already has a disruption", raw, lap)
		}

		kind, err := disruption.ParseKind(parts[1])
		if err != nil {
			return nil, fmt.Errorf("disruption %q: %s", raw, err)
		}

		intensity := disruption.Moderate
		if len(parts) == 3 {
			intensity = disruption.Intensity(strings.ToLower(parts[2]))
			switch intensity {
			case disruption.Light, disruption.Moderate, disruption.Heavy:
			default:
				return nil, fmt.Errorf("disruption %q: unknown intensity %q", raw, parts[2])
			}
		}
		schedule[lap] = disruption.New(kind, intensity, at)
	}
	return schedule, nil
}

func runSimulate(w io.Writer, opts simulateOptions) error {
	roster, err := loadRoster(opts.roster)
	if err != nil {
		return fmt.Errorf("load roster: %s", err)
	}
	st, err := race.NewState(roster)
	if err != nil {
		return fmt.Errorf("new state: %s", err)
	}
	schedule, err := parseSchedule(opts.disrupt, st.TotalLaps, time.Now())
	if err != nil {
		return err
	}

	level := log.WarnLevel
	if opts.debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: level, Prefix: "stepper"})
	stepper := engine.NewStepper(logger, st.Track, opts.seed1, opts.seed2)

	var active *disruption.Event
	for !st.Finished() {
		if ev, ok := schedule[st.Lap+1]; ok {
			active = &ev
		}
		st, _ = stepper.Advance(st, 1, active)
	}

	fmt.Fprintf(w, "%s, %d laps, seed1=%d seed2=%d\n\n", st.Track.Name, st.TotalLaps, opts.seed1, opts.seed2)
	if err := printClassification(w, st); err != nil {
		return err
	}
	if opts.events {
		fmt.Fprintln(w)
		printEvents(w, st.Events)
	}
	return nil
}

func printClassification(w io.Writer, st *race.State) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tCAR\tTEAM\tTIME\tBEST\tSTOPS\tTYRE")
	for i, c := range st.Cars {
		pos := humanize.Ordinal(i + 1)
		result := c.GapString()
		if c.Position == 1 && c.Active() {
			result = raceTime(c.CumulativeTime)
		}
		if !c.Active() {
			pos = "DNF"
			result = fmt.Sprintf("DNF (lap %d)", c.RetiredLap)
		}

		name := c.Code
		if c.Hero {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%d\t%s\n", pos, name, c.Team, result, c.BestLapTime, c.PitCount, c.Compound.Short())
	}
	return tw.Flush()
}

// printEvents prints the retained history oldest first.
func printEvents(w io.Writer, events []race.Event) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		fmt.Fprintf(w, "L%02d  %-9s %s\n", ev.Lap, ev.Kind, ev.Description)
	}
}

func raceTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%06.3f", h, m, s)
}
