package disruption

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	Rain         Kind = "rain"
	Heatwave     Kind = "heatwave"
	MinorCrash   Kind = "minor_crash"
	MajorCrash   Kind = "major_crash"
	TyreFailure  Kind = "tyre_failure"
	Traffic      Kind = "traffic"
	Penalty      Kind = "penalty_5s"
	TyreDegSpike Kind = "tyre_deg_spike"
)

var Kinds = []Kind{Rain, Heatwave, MinorCrash, MajorCrash, TyreFailure, Traffic, Penalty, TyreDegSpike}

// aliases maps the names used by the chaos pad to known kinds.
var aliases = map[string]Kind{
	"crash":      MajorCrash,
	"mechanical": MajorCrash,
	"safety_car": MajorCrash,
	"vsc":        MinorCrash,
	"spin":       MinorCrash,
	"puncture":   TyreFailure,
	"penalty":    Penalty,
	"deg_spike":  TyreDegSpike,
}

var (
	ErrUnknownKind = errors.New("unknown disruption kind")
	ErrInvalid     = errors.New("invalid disruption payload")
)

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	if k, ok := aliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Targeted reports whether the kind picks a victim car.
func (k Kind) Targeted() bool {
	switch k {
	case MinorCrash, MajorCrash, TyreFailure, Penalty:
		return true
	}
	return false
}

// Weather reports whether the kind is announced as a weather event
// rather than a flag.
func (k Kind) Weather() bool {
	return k == Rain || k == Heatwave || k == TyreDegSpike
}

type Intensity string

const (
	Light    Intensity = "light"
	Moderate Intensity = "moderate"
	Heavy    Intensity = "heavy"
)

func parseIntensity(s string) Intensity {
	switch Intensity(strings.ToLower(strings.TrimSpace(s))) {
	case Light:
		return Light
	case Heavy:
		return Heavy
	}
	return Moderate
}

type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Intensity Intensity `json:"intensity"`
	Timestamp time.Time `json:"timestamp"`
}

func New(kind Kind, intensity Intensity, at time.Time) Event {
	if intensity == "" {
		intensity = Moderate
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Intensity: intensity,
		Timestamp: at,
	}
}

type message struct {
	Event     string `json:"event"`
	Kind      string `json:"kind"`
	Intensity string `json:"intensity"`
}

// Parse decodes a disruption message. Both {"event": "rain", "intensity":
// "heavy"} and a bare kind such as "rain" are accepted. Unknown kinds
// return an error wrapping ErrUnknownKind, which callers ignore.
func Parse(data []byte, at time.Time) (Event, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return Event{}, fmt.Errorf("%w: empty message", ErrInvalid)
	}

	if !strings.HasPrefix(trimmed, "{") {
		kind, err := ParseKind(strings.Trim(trimmed, `"`))
		if err != nil {
			return Event{}, err
		}
		return New(kind, Moderate, at), nil
	}

	var msg message
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	name := msg.Event
	if name == "" {
		name = msg.Kind
	}
	if name == "" {
		return Event{}, fmt.Errorf("%w: no event kind", ErrInvalid)
	}

	kind, err := ParseKind(name)
	if err != nil {
		return Event{}, err
	}
	return New(kind, parseIntensity(msg.Intensity), at), nil
}
