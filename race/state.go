package race

import "slices"

type TrackCondition string

const (
	Green            TrackCondition = "GREEN"
	VirtualSafetyCar TrackCondition = "VSC"
	SafetyCar        TrackCondition = "SC"
)

func (t TrackCondition) Caution() bool {
	return t == VirtualSafetyCar || t == SafetyCar
}

type Conditions struct {
	Track           TrackCondition `json:"track"`
	CautionLapsLeft int            `json:"cautionLapsLeft"`
	Rainfall        bool           `json:"rainfall"`
	TrackTempDelta  float64        `json:"trackTempDelta"`
	Disruption      string         `json:"disruption,omitempty"`
	DisruptionID    string         `json:"disruptionId,omitempty"`
	Intensity       string         `json:"intensity,omitempty"`
	// DisruptionLap is the lap the active disruption was first observed.
	DisruptionLap int `json:"disruptionLap,omitempty"`
}

type DecisionReason string

const (
	ReasonNone      DecisionReason = "none"
	ReasonOptimizer DecisionReason = "optimizer"
	ReasonUndercut  DecisionReason = "undercut"
	ReasonCover     DecisionReason = "cover"
	ReasonForced    DecisionReason = "forced"
	ReasonCheapPit  DecisionReason = "cheap_pit"
)

type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Decision is the strategy call for the hero car on a given lap. Pit laps
// are absolute lap numbers, zero when no further stop is planned.
type Decision struct {
	ShouldPitNow    bool           `json:"shouldPitNow"`
	TargetCompound  Compound       `json:"targetCompound"`
	IsTwoStop       bool           `json:"isTwoStop"`
	ProjectedPitLap int            `json:"projectedPitLap"`
	SecondPitLap    int            `json:"secondPitLap,omitempty"`
	Reason          DecisionReason `json:"reason"`
	ProjectedTotal  float64        `json:"projectedTotal"`
	PitWindow       Window         `json:"pitWindow"`
}

type Track struct {
	Name      string  `json:"name" yaml:"name"`
	TotalLaps int     `json:"totalLaps" yaml:"total_laps"`
	AnchorLap float64 `json:"anchorLap" yaml:"anchor_lap"`
	PitLoss   float64 `json:"pitLoss" yaml:"pit_loss"`
}

// State is a complete snapshot of the race. Once published a State is
// never modified; the stepper works on a Clone.
type State struct {
	Track      Track      `json:"track"`
	Lap        int        `json:"lap"`
	TotalLaps  int        `json:"totalLaps"`
	Cars       []Car      `json:"standings"`
	Conditions Conditions `json:"conditions"`
	Decision   Decision   `json:"decision"`
	Events     []Event    `json:"events"`
}

func (s *State) Clone() *State {
	c := *s
	c.Cars = slices.Clone(s.Cars)
	c.Events = slices.Clone(s.Events)
	return &c
}

func (s *State) Finished() bool {
	return s.Lap >= s.TotalLaps
}

func (s *State) LapsRemaining() int {
	return max(s.TotalLaps-s.Lap, 0)
}

// Leader returns the first active car. ok is false when every car is OUT.
func (s *State) Leader() (Car, bool) {
	for _, c := range s.Cars {
		if c.Active() {
			return c, true
		}
	}
	return Car{}, false
}

func (s *State) Hero() (Car, bool) {
	for _, c := range s.Cars {
		if c.Hero {
			return c, true
		}
	}
	return Car{}, false
}

func (s *State) Car(code string) (Car, bool) {
	for _, c := range s.Cars {
		if c.Code == code {
			return c, true
		}
	}
	return Car{}, false
}

// CarAt returns the active car at position pos.
func (s *State) CarAt(pos int) (Car, bool) {
	for _, c := range s.Cars {
		if c.Active() && c.Position == pos {
			return c, true
		}
	}
	return Car{}, false
}

func (s *State) ActiveCars() []Car {
	cars := make([]Car, 0, len(s.Cars))
	for _, c := range s.Cars {
		if c.Active() {
			cars = append(cars, c)
		}
	}
	return cars
}
