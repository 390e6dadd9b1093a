package advisory

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
	"github.com/tifye/pitwall/strategy"
)

const (
	DefaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

// Report is the strategy query answer: the hero's view plus a readable
// rationale and a Monte Carlo win probability.
type Report struct {
	engine.StrategyView
	Rationale      string  `json:"rationale"`
	WinProbability int     `json:"winProbability"`
	MeanTotal      float64 `json:"meanTotal"`
	Runs           int     `json:"runs"`
}

type Option func(*Advisor)

func WithRuns(runs int) Option {
	return func(a *Advisor) {
		a.runs = runs
	}
}

// Advisor builds Reports. Reports are cached per lap and decision, so
// every subscriber of a lap gets the same numbers.
type Advisor struct {
	logger    *log.Logger
	optimizer *strategy.Optimizer
	runs      int
	cache     *cache.Cache

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func New(logger *log.Logger, optimizer *strategy.Optimizer, seed1, seed2 uint64, opts ...Option) *Advisor {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(optimizer)

	a := &Advisor{
		logger:    logger,
		optimizer: optimizer,
		runs:      strategy.DefaultRuns,
		cache:     cache.New(DefaultExpiration, cleanupInterval),
		rnd:       rand.New(rand.NewPCG(seed1, seed2)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func cacheKey(st *race.State) string {
	d := st.Decision
	return fmt.Sprintf("%d|%s|%s|%t|%d|%d|%s", st.Lap, st.Conditions.DisruptionID, d.Reason, d.ShouldPitNow, d.ProjectedPitLap, d.SecondPitLap, d.TargetCompound)
}

func (a *Advisor) Report(st *race.State) Report {
	assert.AssertNotNil(st)

	key := cacheKey(st)
	if r, ok := a.cache.Get(key); ok {
		return r.(Report)
	}

	view := engine.ViewOf(st)
	eff := disruption.Active(st.Conditions, st.Lap)
	plan := strategy.PlanFor(st.Decision, st.Lap+1)

	a.rndMu.Lock()
	proj := a.optimizer.Project(st, plan, eff, a.runs, a.rnd)
	a.rndMu.Unlock()

	r := Report{
		StrategyView:   view,
		WinProbability: proj.WinProbability,
		MeanTotal:      proj.MeanTotal,
		Runs:           proj.Runs,
	}
	r.Rationale = Rationale(view, eff, proj.WinProbability)

	a.cache.SetDefault(key, r)
	a.logger.Debug("report", "lap", st.Lap, "reason", view.Decision.Reason, "win", proj.WinProbability)
	return r
}

// Any is Report with an untyped result, for use as a mux strategy
// reporter.
func (a *Advisor) Any(st *race.State) any {
	return a.Report(st)
}

var rationaleTmpl = template.Must(template.New("rationale").Funcs(template.FuncMap{
	"tyre":    tyreName,
	"ordinal": humanize.Ordinal,
}).Parse(
	`{{.Call}}` +
		`{{with .D}}{{if eq .Reason "forced"}} Box, box for {{tyre .TargetCompound}}.` +
		`{{else if eq .Reason "cheap_pit"}} Cheap pit window, box now for {{tyre .TargetCompound}}.` +
		`{{else if eq .Reason "undercut"}} Going for the undercut, box for {{tyre .TargetCompound}}.` +
		`{{else if eq .Reason "cover"}} Car behind has pitted, box to cover, {{tyre .TargetCompound}}.` +
		`{{else if .ShouldPitNow}} Box this lap for {{tyre .TargetCompound}}.` +
		`{{else if .ProjectedPitLap}} Plan is lap {{.ProjectedPitLap}} for {{tyre .TargetCompound}}` +
		`{{if .SecondPitLap}}, then lap {{.SecondPitLap}}{{end}}.` +
		`{{else}} No further stop, bring it home.{{end}}{{end}}` +
		`{{if .Racing}} Running {{ordinal .Position}}, win probability {{.Win}}%.{{end}}`,
))

// Rationale is the radio style explanation of the current decision.
func Rationale(view engine.StrategyView, eff disruption.Effect, win int) string {
	var buf bytes.Buffer
	err := rationaleTmpl.Execute(&buf, struct {
		Call     string
		D        race.Decision
		Racing   bool
		Position int
		Win      int
	}{
		Call:     call(view, eff),
		D:        view.Decision,
		Racing:   view.LapsRemaining > 0 && view.Position > 0,
		Position: view.Position,
		Win:      win,
	})
	assert.Assert(err == nil, "rationale template must execute")
	return strings.TrimSpace(buf.String())
}

func call(view engine.StrategyView, eff disruption.Effect) string {
	switch eff.Kind {
	case disruption.Rain:
		if view.Compound.IsSlick() {
			return fmt.Sprintf("Rain on track, losing %.0fs a lap on %s.", eff.SlickPenalty, tyreName(view.Compound))
		}
		return fmt.Sprintf("Rain on track, %s are the right tyre.", tyreName(view.Compound))
	case disruption.TyreFailure:
		return "Puncture out there, debris on track."
	case disruption.MajorCrash:
		if eff.Caution() {
			return "Safety car deployed."
		}
	case disruption.MinorCrash:
		if eff.Caution() {
			return "VSC deployed, maintain positive delta."
		}
	case disruption.Heatwave:
		return "Track temps soaring, deg way up."
	case disruption.TyreDegSpike:
		if eff.DegMultiplier > 1 {
			return "Tyres have dropped off."
		}
	case disruption.Penalty:
		return "Five second penalty handed out."
	case disruption.Traffic:
		if eff.TrafficPenalty > 0 {
			return "DRS train, traffic is costing us time."
		}
	}

	if view.Compound.IsWet() && !eff.Rainfall {
		return "Track is dry, we need slicks."
	}
	if view.TyreLife <= strategy.TyreCliffPercent {
		return fmt.Sprintf("%s are past the cliff.", capitalize(tyreName(view.Compound)))
	}
	return fmt.Sprintf("Pace nominal on %s.", tyreName(view.Compound))
}

func tyreName(c race.Compound) string {
	switch c {
	case race.NoCompound:
		return "fresh tyres"
	case race.Intermediate:
		return "inters"
	case race.Wet:
		return "full wets"
	}
	return strings.ToLower(string(c)) + "s"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
