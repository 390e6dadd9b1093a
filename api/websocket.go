package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/mux"
)

const sessionName = "pitwall"

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

func handleWebsocketConn(
	logger *log.Logger,
	mx *mux.Mux,
	hub *mux.RaceHub,
	newSessionCookie func(s *sessions.Session) (*http.Cookie, error),
) echo.HandlerFunc {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(mx)
	assert.AssertNotNil(hub)

	return func(c echo.Context) error {
		session, err := session.Get(sessionName, c)
		if err != nil {
			logger.Error("get session", "err", err)
		}

		// trigger save to ensure session has an ID
		if err := session.Save(c.Request(), c.Response()); err != nil {
			logger.Error("save session for ID", "err", err)
		}

		var sessionID mux.ID
		copy(sessionID[:], []byte(session.ID))

		responseHeader := http.Header{}
		sessionCookie, err := newSessionCookie(session)
		if err != nil {
			logger.Error("new session cookie", "err", err)
		} else {
			assert.AssertNotNil(sessionCookie)
			responseHeader.Add("Set-Cookie", sessionCookie.String())
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), responseHeader)
		if err != nil {
			logger.Error("upgrade", "err", err)
			return err
		}
		defer conn.Close()

		conn.SetReadLimit(mux.MessageSizeLimit)
		channelID := mx.Connect(sessionID, mux.WriterFunc(func(data []byte) (n int, err error) {
			return len(data), conn.WriteMessage(websocket.TextMessage, data)
		}))
		defer mx.Disconnect(sessionID, channelID)

		logger.Debug("channel connected", "channelID", channelID, "sessionID", sessionID)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Debug("ws read", "err", err, "id", sessionID)
				break
			}

			if isBareDisruption(msg) {
				if _, _, err := hub.Ingest(msg); err != nil {
					logger.Warn("dropped disruption", "err", err)
				}
				continue
			}

			if err = mx.Message(sessionID, channelID, msg); err != nil {
				logger.Warn("mux message", "err", err, "channelID", channelID)
			}
		}

		return nil
	}
}

// isBareDisruption reports whether msg is a disruption sent outside the
// mux envelope, either plain text such as "rain" or a JSON object with
// an event and no type.
func isBareDisruption(msg []byte) bool {
	trimmed := bytes.TrimSpace(msg)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return true
	}

	var envelope struct {
		Type  string `json:"type"`
		Event string `json:"event"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return false
	}
	return envelope.Type == "" && (envelope.Event != "" || envelope.Kind != "")
}
