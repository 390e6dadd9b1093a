package api

import (
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func registerRoutes(e *echo.Echo, logger *log.Logger, config *viper.Viper, deps *ServerDependencies) {
	e.GET("/race", handleGetRace(deps.Engine))
	e.GET("/race/events", handleGetRaceEvents(deps.Engine))
	e.GET("/strategy", handleGetStrategy(deps.Engine, deps.Advisor))

	var guard []echo.MiddlewareFunc
	if config.GetString("JWT_SIGNING_KEY") != "" {
		guard = append(guard, requireAuthMiddleware(logger, config))
	} else {
		logger.Warn("JWT_SIGNING_KEY not set, control endpoints are unauthenticated")
	}
	e.POST("/disruptions", handlePostDisruption(logger, deps.Hub), guard...)
	e.POST("/clock/speed", handlePostClockSpeed(logger, deps.Engine.Clock()), guard...)

	if config.GetString("OTP_SECRET") != "" && config.GetString("JWT_SIGNING_KEY") != "" {
		e.GET("/token", handleGetToken(logger, config))
		e.POST("/token/verify", handlePostVerifyToken(logger, config))
	}

	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.SessionStore != nil && deps.NewSessionCookie != nil {
		e.GET("/ws", handleWebsocketConn(logger.WithPrefix("ws"), deps.WSMux, deps.Hub, deps.NewSessionCookie))
	}
}
