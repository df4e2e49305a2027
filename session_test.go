package main

import (
	"testing"
	"time"
)

func TestCreateAndListSessions(t *testing.T) {
	sm := NewSessionManager(nil)

	sess := sm.CreateSession("arena-1")
	if sess == nil {
		t.Fatal("CreateSession returned nil")
	}
	defer sm.remove(sess.ID)

	if got := sm.GetSession(sess.ID); got != sess {
		t.Error("GetSession did not return the created session")
	}
	if sm.GetSession("nope") != nil {
		t.Error("GetSession for unknown id should return nil")
	}

	list := sm.ListSessions()
	if len(list) != 1 {
		t.Fatalf("ListSessions returned %d entries, want 1", len(list))
	}
	if list[0].ID != sess.ID || list[0].Name != "arena-1" {
		t.Errorf("session info = %+v", list[0])
	}
}

func TestRemoveLastClientReapsSession(t *testing.T) {
	sm := NewSessionManager(nil)
	sess := sm.CreateSession("arena")

	clientID, _ := sess.Game.AddClient()
	if clientID == 0 {
		t.Fatal("AddClient failed")
	}

	sm.RemoveClient(sess.ID, clientID)
	if sm.GetSession(sess.ID) != nil {
		t.Error("empty session should be removed with its last client")
	}
}

func TestJanitorReapsIdleSessions(t *testing.T) {
	oldTimeout := SessionIdleTimeout
	SessionIdleTimeout = 50 * time.Millisecond
	defer func() { SessionIdleTimeout = oldTimeout }()

	sm := NewSessionManager(nil)
	idle := sm.CreateSession("idle")
	busy := sm.CreateSession("busy")
	busyClient, _ := busy.Game.AddClient()

	stop := make(chan struct{})
	go sm.RunJanitor(stop)
	defer close(stop)

	deadline := time.Now().Add(2 * time.Second)
	for sm.GetSession(idle.ID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("idle session was not reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sm.GetSession(busy.ID) == nil {
		t.Error("session with a client must not be reaped")
	}

	sm.RemoveClient(busy.ID, busyClient)
}
