package race

import (
	"fmt"
	"strings"
)

type Compound string

const (
	NoCompound   Compound = ""
	Soft         Compound = "SOFT"
	Medium       Compound = "MEDIUM"
	Hard         Compound = "HARD"
	Intermediate Compound = "INTERMEDIATE"
	Wet          Compound = "WET"
	Unknown      Compound = "UNKNOWN"
)

// DryCompounds are ordered softest first.
var DryCompounds = []Compound{Soft, Medium, Hard}

func ParseCompound(s string) (Compound, error) {
	c := Compound(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case Soft, Medium, Hard, Intermediate, Wet, Unknown:
		return c, nil
	case "S":
		return Soft, nil
	case "M":
		return Medium, nil
	case "H":
		return Hard, nil
	case "I", "INTER":
		return Intermediate, nil
	case "W":
		return Wet, nil
	}
	return NoCompound, fmt.Errorf("unknown compound %q", s)
}

func (c Compound) IsSlick() bool {
	return c == Soft || c == Medium || c == Hard || c == Unknown
}

func (c Compound) IsWet() bool {
	return c == Intermediate || c == Wet
}

// Short returns the single letter used on timing screens.
func (c Compound) Short() string {
	switch c {
	case Soft:
		return "S"
	case Medium:
		return "M"
	case Hard:
		return "H"
	case Intermediate:
		return "I"
	case Wet:
		return "W"
	}
	return "?"
}
