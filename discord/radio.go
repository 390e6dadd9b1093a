package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
)

const (
	discordMaxMessageLength = 2000
	sendTimeout             = 10 * time.Second
	callCacheTime           = 30 * time.Minute
)

type sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// RationaleFunc explains the hero's current strategy call.
type RationaleFunc func(st *race.State) string

// Radio posts race control messages and the hero's strategy calls to a
// Discord channel.
type Radio struct {
	logger    *log.Logger
	sesh      *discordgo.Session
	sender    sender
	channelID string
	rationale RationaleFunc

	// sent strategy calls, so a call repeated lap after lap is posted
	// once.
	calls *cache.Cache
}

func NewRadio(logger *log.Logger, token, channelID string, rationale RationaleFunc) (*Radio, error) {
	assert.AssertNotEmpty(token)

	sesh, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	r := newRadio(logger, sesh, channelID, rationale)
	r.sesh = sesh
	return r, nil
}

func newRadio(logger *log.Logger, s sender, channelID string, rationale RationaleFunc) *Radio {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(s)
	assert.AssertNotEmpty(channelID)

	return &Radio{
		logger:    logger,
		sender:    s,
		channelID: channelID,
		rationale: rationale,
		calls:     cache.New(callCacheTime, 2*callCacheTime),
	}
}

func (r *Radio) Start() error {
	if r.sesh == nil {
		return nil
	}
	return r.sesh.Open()
}

func (r *Radio) Stop() error {
	if r.sesh == nil {
		return nil
	}
	return r.sesh.Close()
}

// Publish implements engine.Publisher.
func (r *Radio) Publish(ctx context.Context, u engine.Update) error {
	lines := r.lines(u)
	if len(lines) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	assert.AssertDeadline(ctx)

	for _, msg := range chunk(lines, discordMaxMessageLength) {
		_, err := r.sender.ChannelMessageSend(r.channelID, msg, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("send message: %s", err)
		}
	}
	r.logger.Debug("radio", "lap", u.State.Lap, "lines", len(lines))
	return nil
}

func (r *Radio) lines(u engine.Update) []string {
	st := u.State
	hero, _ := st.Hero()

	var lines []string
	for _, ev := range u.Events {
		switch ev.Kind {
		case race.EventOvertake:
			if ev.Car != hero.Code {
				continue
			}
		case race.EventPit:
			if ev.Car != hero.Code {
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("`L%02d` %s %s", ev.Lap, eventIcon(ev.Kind), ev.Description))
	}

	if r.rationale != nil && hero.Active() && !st.Finished() {
		if key := callKey(st.Decision, st.Conditions.DisruptionID); r.calls.Add(key, struct{}{}, cache.DefaultExpiration) == nil {
			lines = append(lines, fmt.Sprintf("`L%02d` 📻 **%s** %s", st.Lap, hero.Code, r.rationale(st)))
		}
	}
	return lines
}

// callKey identifies a strategy call independently of the lap it was
// made on.
func callKey(d race.Decision, disruptionID string) string {
	return fmt.Sprintf("%s|%t|%s|%d|%d|%s", d.Reason, d.ShouldPitNow, d.TargetCompound, d.ProjectedPitLap, d.SecondPitLap, disruptionID)
}

func eventIcon(k race.EventKind) string {
	switch k {
	case race.EventPit:
		return "🔧"
	case race.EventOvertake:
		return "⬆️"
	case race.EventIncident:
		return "💥"
	case race.EventWeather:
		return "🌦️"
	case race.EventFlag:
		return "🏁"
	}
	return "•"
}

// chunk joins lines into messages no longer than limit. A single line
// over the limit is truncated.
func chunk(lines []string, limit int) []string {
	var msgs []string
	var b strings.Builder
	for _, line := range lines {
		if len(line) > limit {
			line = line[:limit]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			msgs = append(msgs, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		msgs = append(msgs, b.String())
	}
	return msgs
}
