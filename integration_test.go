package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub and returns
// the server, its WebSocket URL, and a cleanup func. No database: auth
// and telemetry stay disabled.
func startTestServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()

	prevIdleTimeout := SessionIdleTimeout
	SessionIdleTimeout = 150 * time.Millisecond

	hub := NewHub(nil, nil)
	go hub.Run()

	mux := SetupRoutes(hub)
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return srv, wsURL, func() {
		SessionIdleTimeout = prevIdleTimeout
		srv.Close()
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// sendMsg sends a typed control message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// readControl reads the next JSON control message, skipping any binary
// snapshot frames interleaved with it.
func readControl(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	}
}

// readBinary reads the next binary frame, skipping text frames.
func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			return raw
		}
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// createAndJoin creates a session then joins it. Returns the session ID
// and the joined reply payload.
func createAndJoin(t *testing.T, conn *websocket.Conn, sname string) (string, JoinedMsg) {
	t.Helper()
	sendMsg(t, conn, MsgCreate, CreateMsg{SessionName: sname})
	created := readControl(t, conn)
	if created.T != MsgCreated {
		t.Fatalf("expected created, got %s", created.T)
	}
	sid := dataMap(t, created)["sid"].(string)

	sendMsg(t, conn, MsgJoin, JoinMsg{SessionID: sid})
	joined := readControl(t, conn)
	if joined.T != MsgJoined {
		t.Fatalf("expected joined, got %s", joined.T)
	}
	raw, _ := json.Marshal(joined.Data)
	var jm JoinedMsg
	json.Unmarshal(raw, &jm)
	return sid, jm
}

// ---------- join flow ----------

func TestJoinHandshake(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sid, jm := createAndJoin(t, c, "Arena1")
	if jm.SessionID != sid {
		t.Errorf("joined sid = %s, want %s", jm.SessionID, sid)
	}
	if jm.ClientID == 0 {
		t.Error("joined reply missing client id")
	}
	if jm.EntityID < 1001 {
		t.Errorf("entity id = %d, want >= 1001", jm.EntityID)
	}
	if jm.TickRate != TickRate || jm.PosScale != PosScale {
		t.Errorf("constants rate=%d scale=%d, want %d/%d", jm.TickRate, jm.PosScale, TickRate, PosScale)
	}
}

func TestJoinNonExistentSession(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, MsgJoin, JoinMsg{SessionID: "no-such-session"})
	env := readControl(t, c)
	if env.T != MsgError {
		t.Fatalf("expected error, got %s", env.T)
	}
}

func TestListSessions(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, MsgList, nil)
	env := readControl(t, c)
	if env.T != MsgSessions {
		t.Fatalf("expected sessions, got %s", env.T)
	}
	raw, _ := json.Marshal(env.Data)
	var list []SessionInfo
	json.Unmarshal(raw, &list)
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	createAndJoin(t, c2, "Visible")

	sendMsg(t, c, MsgList, nil)
	env = readControl(t, c)
	raw, _ = json.Marshal(env.Data)
	json.Unmarshal(raw, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	if list[0].Name != "Visible" || list[0].Clients != 1 {
		t.Errorf("session info = %+v", list[0])
	}
}

// ---------- snapshot stream ----------

func TestBaselineThenDeltas(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	_, jm := createAndJoin(t, c, "Stream")

	// First binary frame after joining must be a full snapshot carrying
	// our entity.
	buf := readBinary(t, c)
	snap, err := DecodeFull(buf)
	if err != nil {
		t.Fatalf("baseline decode: %v", err)
	}
	found := false
	for _, e := range snap.Entities {
		if e.ID == jm.EntityID {
			found = true
		}
	}
	if !found {
		t.Fatalf("baseline snapshot missing entity %d", jm.EntityID)
	}

	// Everything after rides as deltas with increasing ticks.
	prevTick := snap.Tick
	for i := 0; i < 5; i++ {
		buf = readBinary(t, c)
		patch, err := DecodeDelta(buf)
		if err != nil {
			t.Fatalf("delta %d decode: %v", i, err)
		}
		if patch.Tick <= prevTick {
			t.Fatalf("delta tick %d not after %d", patch.Tick, prevTick)
		}
		prevTick = patch.Tick
	}
}

func TestInputMovesEntity(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	_, jm := createAndJoin(t, c, "MoveTest")

	buf := readBinary(t, c)
	base, err := DecodeFull(buf)
	if err != nil {
		t.Fatalf("baseline decode: %v", err)
	}

	// Target a spread of imminent ticks so at least one input lands
	// regardless of network timing.
	for k := uint32(3); k < 15; k++ {
		pkt := EncodeClientInput(ClientInput{
			InputSeq:   k,
			TargetTick: base.Tick + k,
			MoveDX:     127,
		})
		if err := c.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
			t.Fatalf("send input: %v", err)
		}
	}

	// Chain deltas onto the baseline until the entity has moved.
	state := base
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		patch, err := DecodeDelta(readBinary(t, c))
		if err != nil {
			t.Fatalf("delta decode: %v", err)
		}
		state, err = ApplyDelta(state, patch)
		if err != nil {
			t.Fatalf("apply delta: %v", err)
		}
		for _, e := range state.Entities {
			if e.ID == jm.EntityID && e.PosX > 0 {
				return // moved in +X as commanded
			}
		}
	}
	t.Fatal("entity never moved despite inputs")
}

// ---------- spectators ----------

func TestSpectatorFeed(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	player := dialWS(t, wsURL)
	defer player.Close()
	sid, jm := createAndJoin(t, player, "Watched")

	spec := dialWS(t, wsURL)
	defer spec.Close()
	sendMsg(t, spec, MsgSpectate, SpectateMsg{SessionID: sid})
	env := readControl(t, spec)
	if env.T != MsgSpectating {
		t.Fatalf("expected spectating, got %s", env.T)
	}

	var ws WorldState
	if err := msgpack.Unmarshal(readBinary(t, spec), &ws); err != nil {
		t.Fatalf("spectator unmarshal: %v", err)
	}
	if len(ws.Entities) != 1 || ws.Entities[0].ID != jm.EntityID {
		t.Errorf("spectator state = %+v, want single entity %d", ws.Entities, jm.EntityID)
	}
}

// ---------- lifecycle ----------

func TestLeaveReapsSession(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	_, _ = createAndJoin(t, c, "Transient")
	sendMsg(t, c, MsgLeave, nil)

	// The session empties on leave; the list goes back to empty.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sendMsg(t, c, MsgList, nil)
		env := readControl(t, c)
		raw, _ := json.Marshal(env.Data)
		var list []SessionInfo
		json.Unmarshal(raw, &list)
		if len(list) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still listed after leave: %+v", list)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDisconnectReapsSession(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	createAndJoin(t, c1, "Dropped")
	c1.Close()

	c2 := dialWS(t, wsURL)
	defer c2.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sendMsg(t, c2, MsgList, nil)
		env := readControl(t, c2)
		raw, _ := json.Marshal(env.Data)
		var list []SessionInfo
		json.Unmarshal(raw, &list)
		if len(list) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("session not reaped after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestInputBeforeJoin(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	pkt := EncodeClientInput(ClientInput{TargetTick: 1, MoveDX: 127})
	if err := c.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
		t.Fatal(err)
	}

	// Connection must survive the stray packet.
	sendMsg(t, c, MsgList, nil)
	env := readControl(t, c)
	if env.T != MsgSessions {
		t.Fatalf("expected sessions, got %s", env.T)
	}
}

// ---------- HTTP surface ----------

func TestStatsEndpoint(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("GET /stats status = %d", resp.StatusCode)
	}
	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if _, ok := stats["connections"]; !ok {
		t.Error("stats missing connections")
	}
	if _, ok := stats["sessions"]; !ok {
		t.Error("stats missing sessions")
	}
}
