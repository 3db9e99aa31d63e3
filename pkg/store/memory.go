package store

import (
	"context"
	"sync"
	"time"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
)

// Memory keeps sessions, transcription claims and the communication log in
// process. It serves single-instance deployments and tests
type Memory struct {
	sessions sync.Map // callID -> ivr.Session

	mu     sync.Mutex
	claims map[string]time.Time
	log    []messaging.LogRecord
	now    func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// LoadSession returns a copy of the stored session
func (m *Memory) LoadSession(_ context.Context, callID string) (*ivr.Session, error) {
	v, ok := m.sessions.Load(callID)
	if !ok {
		return nil, ivr.ErrSessionNotFound
	}
	s := v.(ivr.Session)
	return &s, nil
}

// SaveSession stores a copy of s
func (m *Memory) SaveSession(_ context.Context, s *ivr.Session) error {
	m.sessions.Store(s.CallID, *s)
	return nil
}

// ClaimTranscription reports whether key is claimed for the first time
func (m *Memory) ClaimTranscription(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = m.now()
	return true, nil
}

// Append adds a record to the communication log
func (m *Memory) Append(_ context.Context, rec messaging.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, rec)
	return nil
}

// Recent returns up to limit log records, newest first
func (m *Memory) Recent(_ context.Context, limit int) ([]messaging.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.log) {
		limit = len(m.log)
	}
	out := make([]messaging.LogRecord, 0, limit)
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.log[i])
	}
	return out, nil
}

// PurgeSessions removes sessions not updated since before, completed or
// abandoned
func (m *Memory) PurgeSessions(_ context.Context, before time.Time) (int, error) {
	removed := 0
	m.sessions.Range(func(key, value any) bool {
		s := value.(ivr.Session)
		if s.UpdatedAt.Before(before) {
			m.sessions.Delete(key)
			removed++
		}
		return true
	})
	return removed, nil
}

// PurgeClaims forgets transcription claims made before before
func (m *Memory) PurgeClaims(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, at := range m.claims {
		if at.Before(before) {
			delete(m.claims, key)
			removed++
		}
	}
	return removed, nil
}

// ActiveSessions returns the number of stored sessions
func (m *Memory) ActiveSessions() int {
	count := 0
	m.sessions.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
