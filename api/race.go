package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/tifye/pitwall/advisory"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/mux"
)

const skipTimeout = 3 * time.Second

func handleGetRace(eng *engine.Engine) echo.HandlerFunc {
	assert.AssertNotNil(eng)
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, eng.Snapshot())
	}
}

// handleGetRaceEvents returns the event history, most recent first,
// optionally capped with ?limit=n.
func handleGetRaceEvents(eng *engine.Engine) echo.HandlerFunc {
	assert.AssertNotNil(eng)
	return func(c echo.Context) error {
		events := eng.Snapshot().Events
		if l := c.QueryParam("limit"); l != "" {
			limit, err := strconv.Atoi(l)
			if err != nil || limit < 0 {
				return c.String(http.StatusBadRequest, "limit must be a non-negative integer")
			}
			events = events[:min(limit, len(events))]
		}
		return c.JSON(http.StatusOK, events)
	}
}

func handleGetStrategy(eng *engine.Engine, advisor *advisory.Advisor) echo.HandlerFunc {
	assert.AssertNotNil(eng)
	return func(c echo.Context) error {
		if advisor == nil {
			return c.JSON(http.StatusOK, eng.StrategyQuery())
		}
		return c.JSON(http.StatusOK, advisor.Report(eng.Snapshot()))
	}
}

type disruptionResponse struct {
	Accepted bool              `json:"accepted"`
	Event    *disruption.Event `json:"event,omitempty"`
}

// handlePostDisruption accepts the same payloads as the websocket
// disruption message: JSON or a bare kind.
func handlePostDisruption(logger *log.Logger, hub *mux.RaceHub) echo.HandlerFunc {
	assert.AssertNotNil(hub)
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, mux.MessageSizeLimit))
		if err != nil {
			logger.Debug("read disruption body", "err", err)
			return c.NoContent(http.StatusBadRequest)
		}

		ev, ok, err := hub.Ingest(body)
		switch {
		case errors.Is(err, mux.ErrRateLimited):
			return c.String(http.StatusTooManyRequests, err.Error())
		case err != nil:
			logger.Debug("invalid disruption", "err", err)
			return c.String(http.StatusBadRequest, err.Error())
		case !ok:
			return c.JSON(http.StatusAccepted, disruptionResponse{})
		}
		return c.JSON(http.StatusAccepted, disruptionResponse{Accepted: true, Event: &ev})
	}
}

type clockRequest struct {
	Speed  int   `json:"speed"`
	Paused *bool `json:"paused"`
	Skip   bool  `json:"skip"`
}

type clockResponse struct {
	Speed  int   `json:"speed"`
	Paused bool  `json:"paused"`
	Speeds []int `json:"speeds"`
}

func handlePostClockSpeed(logger *log.Logger, clock *engine.Clock) echo.HandlerFunc {
	assert.AssertNotNil(clock)
	return func(c echo.Context) error {
		var req clockRequest
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		if req.Speed != 0 {
			if !slices.Contains(engine.Speeds, req.Speed) {
				return c.String(http.StatusBadRequest, "unsupported speed")
			}
			clock.SetSpeed(req.Speed)
		}
		if req.Paused != nil {
			clock.Pause(*req.Paused)
		}
		if req.Skip {
			ctx, cancel := context.WithTimeout(c.Request().Context(), skipTimeout)
			defer cancel()
			clock.Skip(ctx)
			if ctx.Err() != nil {
				return c.String(http.StatusServiceUnavailable, "engine busy, skip not delivered")
			}
		}

		logger.Info("clock", "speed", clock.Speed(), "paused", clock.Paused(), "skip", req.Skip)
		return c.JSON(http.StatusOK, clockResponse{
			Speed:  clock.Speed(),
			Paused: clock.Paused(),
			Speeds: engine.Speeds,
		})
	}
}
