package main

import "encoding/json"

// Client -> Server control message types
const (
	MsgList     = "list"
	MsgCreate   = "create"
	MsgJoin     = "join"
	MsgLeave    = "leave"
	MsgSpectate = "spectate"
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth"
)

// Server -> Client control message types
const (
	MsgSessions   = "sessions"
	MsgCreated    = "created"
	MsgJoined     = "joined"
	MsgSpectating = "spectating"
	MsgError      = "error"
	MsgAuthOK     = "auth_ok"
)

// Envelope wraps all outgoing control messages with a type field.
// Simulation traffic never rides in envelopes: inputs and snapshots are
// binary frames carrying the byte-exact wire packets from codec.go.
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids
// double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg asks for a new session
type CreateMsg struct {
	SessionName string `json:"sname"`
}

// JoinMsg attaches the sender to a session as a player
type JoinMsg struct {
	SessionID string `json:"sid"`
}

// SpectateMsg attaches the sender to a session as an observer
type SpectateMsg struct {
	SessionID string `json:"sid"`
}

// JoinedMsg tells a player which client/entity ids the session gave it,
// plus the constants it needs to interpret the wire format
type JoinedMsg struct {
	SessionID string `json:"sid"`
	ClientID  uint32 `json:"cid"`
	EntityID  uint32 `json:"eid"`
	TickRate  int    `json:"rate"`
	PosScale  int    `json:"scale"`
}

// SessionInfo is one entry of the session list
type SessionInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Clients  int    `json:"clients"`
	Entities int    `json:"entities"`
	Tick     uint32 `json:"tick"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"u"`
	Password string `json:"p"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"u"`
	Password string `json:"p"`
}

// AuthMsg authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"tok"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"tok"`
	Username string `json:"u"`
	PlayerID int64  `json:"pid"`
}

// WorldState is the display-unit state feed sent to spectators as
// msgpack. It is a convenience view, not the replication protocol; the
// authoritative encoding is the fixed-point snapshot/delta wire format.
type WorldState struct {
	Tick     uint32        `msgpack:"t"`
	Entities []WorldEntity `msgpack:"e"`
}

// WorldEntity is one entity in display units.
type WorldEntity struct {
	ID     uint32  `msgpack:"id"`
	Kind   uint8   `msgpack:"k"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	VX     float64 `msgpack:"vx"`
	VY     float64 `msgpack:"vy"`
	Health int32   `msgpack:"hp"`
}
