package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/mux"
)

type viewerSimulatorConfig struct {
	// Chance out of 100 that a new viewer will connect
	ViewerConnectProbability uint
	// Chance out of 100 that an existing viewer will disconnect
	ViewerDisconnectProbability uint
	// Chance out of 100 that a disconnect will be called on a
	// viewer that already left
	InvalidDisconnectFaultProbability uint
	// Chance out of 100 that a connected viewer sends a malformed
	// message
	GarbageMessageProbability uint
}

type viewer struct {
	sessionID mux.ID
	channelID mux.ID
}

// screen records what a viewer has been sent.
type screen struct {
	lap      int
	messages uint
}

type viewerSimulator struct {
	logger *log.Logger
	rnd    *rand.Rand

	numConnects           uint
	numDisconnects        uint
	numInvalidDisconnects uint
	numGarbage            uint

	config viewerSimulatorConfig

	connected    map[viewer]*screen
	disconnected []viewer

	mux *mux.Mux
}

func newViewerSimulator(
	logger *log.Logger,
	mux *mux.Mux,
	rnd *rand.Rand,
	config viewerSimulatorConfig,
) *viewerSimulator {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(mux)
	assert.AssertNotNil(rnd)

	return &viewerSimulator{
		logger:    logger,
		rnd:       rnd,
		config:    config,
		connected: map[viewer]*screen{},
		mux:       mux,
	}
}

func (s *viewerSimulator) String() string {
	return fmt.Sprintf(
		`viewerConnectProbability: %d%%
viewerDisconnectProbability: %d%%
invalidDisconnectFaultProbability: %d%%
numConnects: %d
numDisconnects: %d
numInvalidDisconnects: %d
numGarbage: %d
`, s.config.ViewerConnectProbability,
		s.config.ViewerDisconnectProbability,
		s.config.InvalidDisconnectFaultProbability,
		s.numConnects,
		s.numDisconnects,
		s.numInvalidDisconnects,
		s.numGarbage,
	)
}

func (s *viewerSimulator) Step() {
	if Chance(s.rnd, s.config.ViewerConnectProbability) {
		s.connectViewer()
	}

	if Chance(s.rnd, s.config.ViewerDisconnectProbability) {
		if Chance(s.rnd, s.config.InvalidDisconnectFaultProbability) {
			s.invalidDisconnectViewer()
		} else {
			s.disconnectViewer()
		}
	}

	if len(s.connected) > 0 && Chance(s.rnd, s.config.GarbageMessageProbability) {
		s.sendGarbage()
	}
}

// Verify checks every connected viewer has been shown lap.
func (s *viewerSimulator) Verify(lap int) error {
	for v, sc := range s.connected {
		if sc.lap != lap {
			return fmt.Errorf("viewer %x shows lap %d, want %d", v.channelID[:4], sc.lap, lap)
		}
	}
	return nil
}

func (s *viewerSimulator) connectViewer() {
	sid := mux.ID{}
	s.generateMuxID(sid[:])

	sc := &screen{lap: -1}
	cid := s.mux.Connect(sid, mux.WriterFunc(func(data []byte) (int, error) {
		var msg mux.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return 0, err
		}
		sc.messages++
		if msg.Type != mux.TopicStandings {
			return len(data), nil
		}
		var standings mux.Standings
		if err := json.Unmarshal(msg.Payload, &standings); err != nil {
			return 0, err
		}
		sc.lap = standings.Lap
		return len(data), nil
	}))

	v := viewer{sessionID: sid, channelID: cid}
	s.connected[v] = sc

	for _, topic := range []mux.MessageType{mux.TopicStandings, mux.TopicEvents, mux.TopicStrategy} {
		if err := s.mux.Message(sid, cid, subscribeMessage(topic)); err != nil {
			s.logger.Error("subscribe", "err", err, "topic", topic)
		}
	}

	s.logger.Debug("Viewer connected", "sid", sid, "cid", cid)
	s.numConnects += 1
}

func (s *viewerSimulator) disconnectViewer() {
	if len(s.connected) == 0 {
		s.logger.Debug("No viewers to disconnect")
		return
	}

	v := s.randomConnected()
	s.mux.Disconnect(v.sessionID, v.channelID)
	delete(s.connected, v)
	s.disconnected = append(s.disconnected, v)

	s.logger.Debug("Viewer disconnected", "sid", v.sessionID, "cid", v.channelID)
	s.numDisconnects += 1
}

func (s *viewerSimulator) invalidDisconnectViewer() {
	if len(s.disconnected) == 0 {
		return
	}

	v := Pick(s.rnd, s.disconnected)
	s.mux.Disconnect(v.sessionID, v.channelID)

	s.numInvalidDisconnects += 1
}

func (s *viewerSimulator) sendGarbage() {
	v := s.randomConnected()
	garbage := make([]byte, 1+s.rnd.IntN(64))
	for i := range garbage {
		garbage[i] = byte(s.rnd.Uint32())
	}
	if err := s.mux.Message(v.sessionID, v.channelID, garbage); err == nil {
		s.logger.Debug("garbage accepted", "data", garbage)
	}
	s.numGarbage += 1
}

// randomConnected picks deterministically for a given seed, map order is
// not.
func (s *viewerSimulator) randomConnected() viewer {
	viewers := make([]viewer, 0, len(s.connected))
	for v := range s.connected {
		viewers = append(viewers, v)
	}
	slices.SortFunc(viewers, func(a, b viewer) int {
		return bytes.Compare(a.channelID[:], b.channelID[:])
	})
	return Pick(s.rnd, viewers)
}

func (s *viewerSimulator) generateMuxID(b []byte) {
	binary.LittleEndian.PutUint64(b, s.rnd.Uint64())
	binary.LittleEndian.PutUint64(b[8:], s.rnd.Uint64())
}

func subscribeMessage(topic mux.MessageType) []byte {
	payload, _ := json.Marshal(struct{ MessageType mux.MessageType }{topic})
	msg, _ := json.Marshal(mux.Message{Type: "mux:subscribe", Payload: payload})
	return msg
}
