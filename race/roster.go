package race

import (
	"cmp"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// GridGap is the cumulative time offset between consecutive grid slots
	// at the start.
	GridGap = 0.25
	// PaceSpread is the default best lap offset between consecutive grid
	// slots when a roster does not provide one.
	PaceSpread = 0.08

	DefaultAnchorLap = 84.0
	DefaultPitLoss   = 22.0
)

var (
	ErrEmptyRoster = errors.New("roster has no cars")
	ErrHeroCount   = errors.New("roster must have exactly one hero car")
)

//go:embed rosters/monza.yaml
var monzaRoster []byte

type RosterCar struct {
	Code      string  `yaml:"code"`
	Name      string  `yaml:"name"`
	Team      string  `yaml:"team"`
	TeamColor string  `yaml:"team_color"`
	Number    int     `yaml:"number"`
	Grid      int     `yaml:"grid"`
	Compound  string  `yaml:"compound"`
	BestLap   float64 `yaml:"best_lap"`
	Hero      bool    `yaml:"hero"`
}

type Roster struct {
	Track Track       `yaml:"track"`
	Cars  []RosterCar `yaml:"cars"`
}

// DefaultRoster returns the built in 20 car grid.
func DefaultRoster() *Roster {
	r, err := ParseRoster(monzaRoster)
	if err != nil {
		panic(fmt.Sprintf("embedded roster: %s", err))
	}
	return r
}

func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %s", err)
	}
	return ParseRoster(data)
}

func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal roster: %s", err)
	}
	if r.Track.AnchorLap == 0 {
		r.Track.AnchorLap = DefaultAnchorLap
	}
	if r.Track.PitLoss == 0 {
		r.Track.PitLoss = DefaultPitLoss
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Roster) Validate() error {
	if len(r.Cars) == 0 {
		return ErrEmptyRoster
	}
	if r.Track.TotalLaps < 1 {
		return fmt.Errorf("total laps must be at least 1, got %d", r.Track.TotalLaps)
	}
	if r.Track.AnchorLap <= 0 || r.Track.PitLoss < 0 {
		return fmt.Errorf("invalid track timing: anchor %.3f pit loss %.3f", r.Track.AnchorLap, r.Track.PitLoss)
	}

	codes := make(map[string]struct{}, len(r.Cars))
	grid := make([]bool, len(r.Cars)+1)
	heroes := 0
	for _, c := range r.Cars {
		code := strings.TrimSpace(c.Code)
		if code == "" {
			return fmt.Errorf("car with empty code")
		}
		if _, dup := codes[code]; dup {
			return fmt.Errorf("duplicate car code %q", code)
		}
		codes[code] = struct{}{}

		if c.Grid < 1 || c.Grid > len(r.Cars) || grid[c.Grid] {
			return fmt.Errorf("car %s: grid positions must be a permutation of 1..%d, got %d", code, len(r.Cars), c.Grid)
		}
		grid[c.Grid] = true

		if _, err := ParseCompound(c.Compound); err != nil {
			return fmt.Errorf("car %s: %s", code, err)
		}
		if c.BestLap < 0 {
			return fmt.Errorf("car %s: negative best lap", code)
		}
		if c.Hero {
			heroes++
		}
	}
	if heroes != 1 {
		return ErrHeroCount
	}
	return nil
}

// Grid returns the cars ordered by grid slot.
func (r *Roster) Grid() []RosterCar {
	cars := slices.Clone(r.Cars)
	slices.SortFunc(cars, func(a, b RosterCar) int {
		return cmp.Compare(a.Grid, b.Grid)
	})
	return cars
}

// NewState builds the grid. Cars are ordered by grid slot and start
// GridGap seconds apart.
func NewState(r *Roster) (*State, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster: %s", err)
	}

	cars := make([]Car, len(r.Cars))
	for _, rc := range r.Cars {
		compound, _ := ParseCompound(rc.Compound)
		best := rc.BestLap
		if best == 0 {
			best = r.Track.AnchorLap + float64(rc.Grid-1)*PaceSpread
		}
		cumulative := float64(rc.Grid-1) * GridGap
		cars[rc.Grid-1] = Car{
			Code:            strings.TrimSpace(rc.Code),
			Name:            rc.Name,
			Team:            rc.Team,
			TeamColor:       rc.TeamColor,
			Number:          rc.Number,
			Hero:            rc.Hero,
			Position:        rc.Grid,
			CumulativeTime:  cumulative,
			BestLapTime:     best,
			Compound:        compound,
			Status:          Racing,
			GapToLeader:     Gap(cumulative),
			IntervalToAhead: Gap(min(cumulative, GridGap)),
		}
	}

	return &State{
		Track:      r.Track,
		TotalLaps:  r.Track.TotalLaps,
		Cars:       cars,
		Conditions: Conditions{Track: Green},
		Decision:   Decision{Reason: ReasonNone},
		Events:     []Event{},
	}, nil
}
