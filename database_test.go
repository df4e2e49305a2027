package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if got := db.GetSetting("missing"); got != "" {
		t.Errorf("GetSetting(missing) = %q, want empty", got)
	}
	if err := db.SetSetting("motd", "hello"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetSetting("motd"); got != "hello" {
		t.Errorf("GetSetting = %q, want hello", got)
	}
	// Upsert overwrites
	if err := db.SetSetting("motd", "bye"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetSetting("motd"); got != "bye" {
		t.Errorf("GetSetting after upsert = %q, want bye", got)
	}
}

func TestPlayerCRUD(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreatePlayer("alice", "hash123")
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected nonzero player id")
	}

	p, err := db.GetPlayerByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != id || p.PassHash != "hash123" {
		t.Errorf("player = %+v", p)
	}

	p, err = db.GetPlayerByUsername("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("expected nil for unknown username")
	}

	exists, err := db.UsernameExists("alice")
	if err != nil || !exists {
		t.Errorf("UsernameExists(alice) = %v, %v", exists, err)
	}
	exists, _ = db.UsernameExists("nobody")
	if exists {
		t.Error("UsernameExists(nobody) = true")
	}
}

func TestAuthRegisterLoginValidate(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db)

	id, token, err := auth.Register("bob", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatal("register returned empty id/token")
	}

	// Duplicate username rejected
	if _, _, err := auth.Register("bob", "secret"); err == nil {
		t.Error("duplicate register should fail")
	}
	// Validation
	if _, _, err := auth.Register("x", "secret"); err == nil {
		t.Error("too-short username should fail")
	}
	if _, _, err := auth.Register("carol", "abc"); err == nil {
		t.Error("too-short password should fail")
	}

	gotID, gotToken, err := auth.Login("bob", "secret", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if gotID != id {
		t.Errorf("login id = %d, want %d", gotID, id)
	}
	if _, _, err := auth.Login("bob", "wrong", "10.0.0.1"); err == nil {
		t.Error("wrong password should fail")
	}

	pid, username, err := auth.ValidateToken(gotToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if pid != id || username != "bob" {
		t.Errorf("token claims = %d/%s", pid, username)
	}
	if _, _, err := auth.ValidateToken("garbage"); err == nil {
		t.Error("garbage token should fail")
	}
}

func TestAuthSecretPersisted(t *testing.T) {
	db := openTestDB(t)

	a1 := NewAuth(db)
	_, token, err := a1.Register("dave", "secret")
	if err != nil {
		t.Fatal(err)
	}

	// A second Auth over the same database loads the persisted secret
	// and accepts tokens the first one issued.
	a2 := NewAuth(db)
	if _, _, err := a2.ValidateToken(token); err != nil {
		t.Errorf("token rejected after secret reload: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db)
	auth.Register("eve", "secret")

	ip := "192.0.2.1"
	for i := 0; i < maxLoginAttempts; i++ {
		auth.Login("eve", "wrong", ip)
	}
	if _, _, err := auth.Login("eve", "secret", ip); err == nil {
		t.Error("login past rate limit should fail even with valid credentials")
	}
	// Other IPs unaffected
	if _, _, err := auth.Login("eve", "secret", "192.0.2.2"); err != nil {
		t.Errorf("login from fresh ip: %v", err)
	}
}

func TestGenerateGuestName(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := GenerateGuestName()
		if !strings.HasPrefix(name, "Guest_") {
			t.Fatalf("bad guest name %q", name)
		}
		seen[name] = true
	}
	if len(seen) < 40 {
		t.Errorf("guest names not unique enough: %d distinct of 50", len(seen))
	}
}

func TestAnalyticsFlushAndQuery(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)

	sid := "sess-1"
	a.Track(EvtClientJoin, 7, sid, "")
	a.TrackBandwidth(sid, 30, 500, 40, 10)
	a.TrackBandwidth(sid, 60, 500, 20, 10)
	a.Stop() // drains and flushes synchronously

	counts, err := a.EventCounts(1)
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtClientJoin] != 1 || counts[EvtBandwidth] != 2 {
		t.Errorf("counts = %v", counts)
	}

	bw, err := a.SessionBandwidth(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(bw) != 1 {
		t.Fatalf("bandwidth rows = %d, want 1", len(bw))
	}
	if bw[0].SessionID != sid || bw[0].Samples != 2 {
		t.Errorf("bandwidth = %+v", bw[0])
	}
	if bw[0].AvgFull != 500 || bw[0].AvgDelta != 30 {
		t.Errorf("averages = %v/%v, want 500/30", bw[0].AvgFull, bw[0].AvgDelta)
	}
}
