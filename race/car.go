package race

import "fmt"

type Status string

const (
	Racing Status = "RACING"
	Out    Status = "OUT"
)

// Gap is a time difference in seconds. NoGap marks a gap that is
// undefined, either because the car is OUT or because there is no leader.
type Gap float64

const NoGap Gap = -1

type Car struct {
	Code      string `json:"code" yaml:"code"`
	Name      string `json:"name" yaml:"name"`
	Team      string `json:"team" yaml:"team"`
	TeamColor string `json:"teamColor" yaml:"team_color"`
	Number    int    `json:"number" yaml:"number"`
	Hero      bool   `json:"hero" yaml:"hero"`

	Position        int      `json:"position"`
	CumulativeTime  float64  `json:"cumulativeTime"`
	LastLapTime     float64  `json:"lastLapTime"`
	BestLapTime     float64  `json:"bestLapTime"`
	Compound        Compound `json:"compound"`
	TyreAge         int      `json:"tyreAge"`
	PitCount        int      `json:"pitCount"`
	Status          Status   `json:"status"`
	GapToLeader     Gap      `json:"gapToLeader"`
	IntervalToAhead Gap      `json:"intervalToAhead"`

	// Pitted is set when the car stopped on the most recent lap.
	Pitted     bool `json:"pitted"`
	RetiredLap int  `json:"retiredLap,omitempty"`
}

func (c Car) Active() bool {
	return c.Status != Out
}

func (c Car) Stint() int {
	return c.PitCount + 1
}

func (c Car) GapString() string {
	switch {
	case !c.Active():
		return "DNF"
	case c.GapToLeader == NoGap:
		return "-"
	case c.Position == 1:
		return "LEADER"
	}
	return fmt.Sprintf("+%.3f", float64(c.GapToLeader))
}

func (c Car) IntervalString() string {
	switch {
	case !c.Active():
		return "DNF"
	case c.IntervalToAhead == NoGap:
		return "-"
	case c.Position == 1:
		return "INTERVAL"
	}
	return fmt.Sprintf("+%.3f", float64(c.IntervalToAhead))
}
