package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/viper"
	"github.com/tifye/pitwall/assert"
)

const tokenLifetime = 12 * time.Hour

var errNoToken = errors.New("no bearer token")

func verifyToken(c echo.Context, config *viper.Viper) error {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return errNoToken
	}

	signingKey := config.GetString("JWT_SIGNING_KEY")
	assert.AssertNotEmpty(signingKey)

	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(signingKey), nil
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err
}

// tokenError maps a verification failure to a response.
func tokenError(c echo.Context, logger *log.Logger, err error) error {
	switch {
	case errors.Is(err, errNoToken):
		return c.NoContent(http.StatusUnauthorized)
	case errors.Is(err, jwt.ErrTokenExpired):
		return c.String(http.StatusUnauthorized, "token expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return c.String(http.StatusBadRequest, "malformed token")
	}
	logger.Debug("token parse fail", "err", err)
	return c.NoContent(http.StatusUnauthorized)
}

// requireAuthMiddleware guards the race control endpoints.
func requireAuthMiddleware(logger *log.Logger, config *viper.Viper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := verifyToken(c, config); err != nil {
				return tokenError(c, logger, err)
			}
			return next(c)
		}
	}
}

func handlePostVerifyToken(logger *log.Logger, config *viper.Viper) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := verifyToken(c, config); err != nil {
			return tokenError(c, logger, err)
		}
		return c.NoContent(http.StatusOK)
	}
}

// handleGetToken exchanges a TOTP passcode for a race control token.
func handleGetToken(logger *log.Logger, config *viper.Viper) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := config.GetString("OTP_SECRET")
		assert.AssertNotEmpty(secret)

		passcode := c.Request().Header.Get("Passcode")
		if passcode == "" {
			return c.NoContent(http.StatusBadRequest)
		}

		if !totp.Validate(passcode, secret) {
			return c.NoContent(http.StatusUnauthorized)
		}

		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "race-control",
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		})
		signingKey := config.GetString("JWT_SIGNING_KEY")
		assert.AssertNotEmpty(signingKey)
		signed, err := token.SignedString([]byte(signingKey))
		if err != nil {
			logger.Error("jwt sign", "err", err)
			return c.NoContent(http.StatusInternalServerError)
		}

		return c.String(http.StatusOK, signed)
	}
}
