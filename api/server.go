package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/tifye/pitwall/advisory"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/mux"
)

type ServerDependencies struct {
	Engine   *engine.Engine
	Hub      *mux.RaceHub
	WSMux    *mux.Mux
	Advisor  *advisory.Advisor
	Gatherer prometheus.Gatherer

	SessionStore     sessions.Store
	NewSessionCookie func(s *sessions.Session) (*http.Cookie, error)
}

func NewServer(logger *log.Logger, config *viper.Viper, deps *ServerDependencies) *http.Server {
	assert.AssertNotNil(deps)
	assert.AssertNotNil(deps.Engine)
	assert.AssertNotNil(deps.Hub)
	assert.AssertNotNil(deps.WSMux)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if deps.SessionStore != nil {
		e.Use(session.Middleware(deps.SessionStore))
	}

	server := &http.Server{
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       25 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		ErrorLog:          logger.StandardLog(),
		MaxHeaderBytes:    1 << 12,
	}

	registerRoutes(e, logger, config, deps)

	return server
}
