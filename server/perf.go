/*
	This file keeps per-session timing records so a visualization client
	can chart where server time went for its own requests.  Sessions are
	opt-in via a session_id parameter and expire with the task sweeper.
*/

package server

import (
	"net/http"
	"sync"
	"time"
)

// PerformanceRecord is one timed span of server-side work, in Unix
// milliseconds, labeled for client-side charting.
type PerformanceRecord struct {
	StartTime    uint64 `json:"start_time"`
	EndTime      uint64 `json:"end_time"`
	ChannelGroup string `json:"channel_group"`
	ChannelIndex string `json:"channel_index"`
	Msg          string `json:"msg"`
}

type perfSession struct {
	created time.Time
	records []PerformanceRecord
}

type performanceStore struct {
	mu       sync.Mutex
	sessions map[string]*perfSession
}

func newPerformanceStore() *performanceStore {
	return &performanceStore{sessions: make(map[string]*perfSession)}
}

func (s *performanceStore) add(sessionID string, record PerformanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, found := s.sessions[sessionID]
	if !found {
		session = &perfSession{created: time.Now()}
		s.sessions[sessionID] = session
	}
	session.records = append(session.records, record)
}

// get returns the records for a session.  Unknown sessions yield an empty
// list since a client may have been served entirely from its own cache.
func (s *performanceStore) get(sessionID string) []PerformanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, found := s.sessions[sessionID]
	if !found {
		return []PerformanceRecord{}
	}
	records := make([]PerformanceRecord, len(session.records))
	copy(records, session.records)
	return records
}

func (s *performanceStore) sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.created.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func unixMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// recordPerf stores a span that started at startMS and ends now.  A blank
// session id means the client didn't ask for timing, so nothing is kept.
func recordPerf(sessionID, channel string, startMS uint64, msg string) {
	if sessionID == "" {
		return
	}
	perfStore.add(sessionID, PerformanceRecord{
		StartTime:    startMS,
		EndTime:      unixMS(),
		ChannelGroup: "voxeld",
		ChannelIndex: channel,
		Msg:          msg,
	})
}

// performanceHandler returns all records for GET /performance?session_id=...
func performanceHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		BadRequest(w, r, "missing required 'session_id' query parameter")
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"records":    perfStore.get(sessionID),
	})
}
