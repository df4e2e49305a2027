package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxSessions = 100

// SessionIdleTimeout is how long a session may sit empty before the
// janitor reaps it. Variable so tests can shrink it.
var SessionIdleTimeout = 5 * time.Minute

// Session is one running simulation that clients can join.
type Session struct {
	ID   string
	Name string
	Game *Game

	mu         sync.Mutex
	lastActive time.Time
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SessionManager handles creation, lookup and reaping of sessions.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	telemetry *Analytics
}

// NewSessionManager creates a SessionManager. telemetry may be nil.
func NewSessionManager(telemetry *Analytics) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*Session),
		telemetry: telemetry,
	}
}

// CreateSession starts a new simulation. Returns nil when the session
// limit is reached.
func (sm *SessionManager) CreateSession(name string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := uuid.NewString()
	game := NewGame()
	game.SetCaster(DefaultAbilities())
	if sm.telemetry != nil {
		game.SetTelemetry(sm.telemetry, id)
		sm.telemetry.Track(EvtSessionStart, 0, id, "")
	}
	sess := &Session{
		ID:         id,
		Name:       name,
		Game:       game,
		lastActive: time.Now(),
	}
	sm.sessions[id] = sess
	go game.Run()
	return sess
}

// GetSession returns a session by id, or nil.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// RemoveClient detaches a client from a session and reaps the session
// once it is empty.
func (sm *SessionManager) RemoveClient(sessionID string, clientID uint32) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	sess.Game.RemoveClient(clientID)

	if sess.Game.ClientCount() == 0 {
		sm.remove(sessionID)
	}
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if ok {
		sess.Game.Stop()
		if sm.telemetry != nil {
			sm.telemetry.Track(EvtSessionEnd, 0, id, "")
		}
	}
}

// ListSessions returns info about all active sessions.
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:       sess.ID,
			Name:     sess.Name,
			Clients:  sess.Game.ClientCount(),
			Entities: sess.Game.EntityCount(),
			Tick:     sess.Game.Tick(),
		})
	}
	return list
}

// RunJanitor reaps idle empty sessions until stop is closed.
func (sm *SessionManager) RunJanitor(stop <-chan struct{}) {
	ticker := time.NewTicker(SessionIdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sm.reapIdle()
		case <-stop:
			return
		}
	}
}

func (sm *SessionManager) reapIdle() {
	cutoff := time.Now().Add(-SessionIdleTimeout)

	sm.mu.RLock()
	var stale []string
	for id, sess := range sm.sessions {
		if sess.Game.ClientCount() == 0 && sess.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range stale {
		sm.remove(id)
	}
}
