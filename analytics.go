package main

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event types for telemetry tracking
const (
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
	EvtClientJoin   = "client_join"
	EvtClientLeave  = "client_leave"
	EvtBandwidth    = "bandwidth"
	EvtInputDrop    = "input_drop"
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	PlayerID  int64
	SessionID string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes. The
// simulation loop hands it bandwidth samples; nothing here ever blocks a
// tick.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, playerID int64, sessionID string, data string) {
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		PlayerID:  playerID,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full — drop event rather than blocking the tick loop
	}
}

// TrackBandwidth records one sampled comparison of full versus delta
// encoding size for a session broadcast.
func (a *Analytics) TrackBandwidth(sessionID string, tick uint32, fullBytes, deltaBytes, entities int) {
	data := fmt.Sprintf(`{"tick":%d,"full":%d,"delta":%d,"entities":%d}`,
		tick, fullBytes, deltaBytes, entities)
	a.Track(EvtBandwidth, 0, sessionID, data)
}

// Stop gracefully shuts down the analytics writer
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			// Flush immediately if batch is large
			if len(batch) >= 50 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain remaining events
			close(a.events)
			for evt := range a.events {
				batch = append(batch, evt)
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO telemetry_events (event_type, player_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pid := sql.NullInt64{Int64: evt.PlayerID, Valid: evt.PlayerID > 0}
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		_, err := stmt.Exec(evt.Type, pid, sid, data, evt.Timestamp.Format(time.RFC3339))
		if err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	tx.Commit()
}

// --- Query methods ---

// BandwidthStats holds per-session averages of the two encodings.
type BandwidthStats struct {
	SessionID string  `json:"session_id"`
	Samples   int     `json:"samples"`
	AvgFull   float64 `json:"avg_full"`
	AvgDelta  float64 `json:"avg_delta"`
}

// SessionBandwidth returns averaged full/delta sizes per session over
// the last N days, most traffic first.
func (a *Analytics) SessionBandwidth(days int) ([]BandwidthStats, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT session_id, COUNT(*),
			AVG(CAST(json_extract(data, '$.full') AS REAL)),
			AVG(CAST(json_extract(data, '$.delta') AS REAL))
		FROM telemetry_events
		WHERE event_type = ? AND json_valid(data)
			AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY session_id ORDER BY COUNT(*) DESC
	`, EvtBandwidth, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BandwidthStats
	for rows.Next() {
		var bs BandwidthStats
		var avgFull, avgDelta sql.NullFloat64
		if err := rows.Scan(&bs.SessionID, &bs.Samples, &avgFull, &avgDelta); err != nil {
			continue
		}
		bs.AvgFull = avgFull.Float64
		bs.AvgDelta = avgDelta.Float64
		result = append(result, bs)
	}
	return result, rows.Err()
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM telemetry_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
