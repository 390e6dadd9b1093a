package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tifye/pitwall/advisory"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/mux"
	"github.com/tifye/pitwall/race"
	"github.com/tifye/pitwall/strategy"
	"golang.org/x/time/rate"
)

const (
	testSigningKey = "test-signing-key"
	testOTPSecret  = "JBSWY3DPEHPK3PXP"
)

type testServer struct {
	handler http.Handler
	engine  *engine.Engine
}

func newTestServer(t *testing.T, config *viper.Viper, limiter *rate.Limiter) *testServer {
	t.Helper()
	logger := log.New(io.Discard)

	st, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	eng := engine.New(
		logger,
		st,
		engine.NewStepper(logger, st.Track, 1, 2),
		engine.NewClock(time.Second, 1),
		engine.NewMetrics(reg),
	)
	wsMux := mux.NewMux(logger)
	advisor := advisory.New(logger, strategy.NewOptimizer(strategy.NewModel(st.Track), st.Track.PitLoss), 1, 2, advisory.WithRuns(100))
	hub := mux.NewRaceHub(logger, wsMux, eng, advisor.Any, limiter)

	if config == nil {
		config = viper.New()
	}
	s := NewServer(logger, config, &ServerDependencies{
		Engine:   eng,
		Hub:      hub,
		WSMux:    wsMux,
		Advisor:  advisor,
		Gatherer: reg,
	})
	return &testServer{handler: s.Handler, engine: eng}
}

func (s *testServer) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" && strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestGetRace(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.engine.Tick(3)

	rec := s.do(t, http.MethodGet, "/race", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st race.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Lap)
	assert.Len(t, st.Cars, 20)
	assert.Equal(t, 1, st.Cars[0].Position)
}

func TestGetRaceEvents(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.engine.Tick(5)

	rec := s.do(t, http.MethodGet, "/race/events?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []race.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)

	rec = s.do(t, http.MethodGet, "/race/events?limit=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStrategy(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.engine.Tick(2)

	rec := s.do(t, http.MethodGet, "/strategy", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report advisory.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "VER", report.Car)
	assert.Equal(t, 2, report.Lap)
	assert.NotEmpty(t, report.Rationale)
	assert.Equal(t, 100, report.Runs)
}

func TestPostDisruption(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		code     int
		accepted bool
	}{
		{name: "JSON", body: `{"event":"heatwave","intensity":"heavy"}`, code: http.StatusAccepted, accepted: true},
		{name: "Plain text", body: "traffic", code: http.StatusAccepted, accepted: true},
		{name: "Unknown kind", body: `{"event":"meteor"}`, code: http.StatusAccepted},
		{name: "Missing kind", body: `{"intensity":"heavy"}`, code: http.StatusBadRequest},
		{name: "Empty", body: "", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			rec := s.do(t, http.MethodPost, "/disruptions", tt.body, nil)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusAccepted {
				return
			}

			var res disruptionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.accepted, res.Accepted)

			s.engine.Tick(1)
			cond := s.engine.Snapshot().Conditions
			if tt.accepted {
				assert.Equal(t, string(res.Event.Kind), cond.Disruption)
			} else {
				assert.Empty(t, cond.Disruption)
			}
		})
	}
}

func TestPostDisruptionRateLimited(t *testing.T) {
	s := newTestServer(t, nil, rate.NewLimiter(0, 2))

	for range 2 {
		rec := s.do(t, http.MethodPost, "/disruptions", "rain", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/disruptions", "rain", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPostClockSpeed(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(t, http.MethodPost, "/clock/speed", `{"speed":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, s.engine.Clock().Speed())

	rec = s.do(t, http.MethodPost, "/clock/speed", `{"speed":3}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 10, s.engine.Clock().Speed())

	rec = s.do(t, http.MethodPost, "/clock/speed", `{"paused":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.engine.Clock().Paused())

	rec = s.do(t, http.MethodPost, "/clock/speed", `{"skip":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	select {
	case laps := <-s.engine.Clock().C():
		assert.Equal(t, engine.SkipToEnd, laps)
	default:
		t.Fatal("skip not delivered")
	}
}

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func TestProtectedEndpoints(t *testing.T) {
	config := viper.New()
	config.Set("JWT_SIGNING_KEY", testSigningKey)
	config.Set("OTP_SECRET", testOTPSecret)
	s := newTestServer(t, config, nil)

	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}

	rec := s.do(t, http.MethodPost, "/disruptions", "rain", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/disruptions", "rain", bearer("garbage"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/disruptions", "rain", bearer(signedToken(t, time.Now().Add(-time.Minute))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/disruptions", "rain", bearer(signedToken(t, time.Now().Add(time.Minute))))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodGet, "/race", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay public")

	t.Run("Token from passcode", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/token", "", http.Header{"Passcode": []string{"000000"}})
		if rec.Code == http.StatusOK {
			t.Skip("static passcode happened to be valid")
		}
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		code, err := totp.GenerateCode(testOTPSecret, time.Now())
		require.NoError(t, err)
		rec = s.do(t, http.MethodGet, "/token", "", http.Header{"Passcode": []string{code}})
		require.Equal(t, http.StatusOK, rec.Code)

		token := rec.Body.String()
		rec = s.do(t, http.MethodPost, "/token/verify", "", bearer(token))
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = s.do(t, http.MethodPost, "/clock/speed", `{"speed":2}`, bearer(token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.engine.Inject(disruption.New(disruption.Traffic, disruption.Moderate, time.Now()))
	s.engine.Tick(1)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pitwall_lap 1")
	assert.Contains(t, rec.Body.String(), `pitwall_disruptions_total{kind="traffic"} 1`)
}

func TestIsBareDisruption(t *testing.T) {
	assert.True(t, isBareDisruption([]byte("rain")))
	assert.True(t, isBareDisruption([]byte(`{"event":"rain","intensity":"heavy"}`)))
	assert.False(t, isBareDisruption([]byte(`{"type":"disruption","payload":{"event":"rain"}}`)))
	assert.False(t, isBareDisruption([]byte(`{"type":"mux:subscribe","payload":{"MessageType":"standings"}}`)))
}
