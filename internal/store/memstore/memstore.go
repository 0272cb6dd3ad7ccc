// Package memstore is an in-memory Store: the default when no data
// directory is configured, and the persistence collaborator used by
// tests. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"chatline/internal/domain"
)

type userStatus struct {
	Online   bool
	LastSeen time.Time
}

type Store struct {
	mu       sync.Mutex
	messages map[domain.RoomID][]domain.Message
	calls    map[domain.CallID]*domain.CallRecord
	status   map[domain.UserID]userStatus
	failure  error
}

func New() *Store {
	return &Store{
		messages: make(map[domain.RoomID][]domain.Message),
		calls:    make(map[domain.CallID]*domain.CallRecord),
		status:   make(map[domain.UserID]userStatus),
	}
}

// SetFailure makes every following operation return err until reset
// with nil. Lets tests exercise persistence-failure rollback paths.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *Store) SaveMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	s.messages[m.RoomID] = append(s.messages[m.RoomID], *m)
	return nil
}

func (s *Store) MessagesByRoom(_ context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, s.failure
	}
	msgs := s.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) CreateCall(_ context.Context, c *domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	cp := *c
	cp.Participants = append([]domain.CallParticipant(nil), c.Participants...)
	s.calls[c.ID] = &cp
	return nil
}

func (s *Store) AddCallParticipant(_ context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if rec, ok := s.calls[callID]; ok {
		rec.Participants = append(rec.Participants, domain.CallParticipant{
			UserID:   userID,
			JoinedAt: at,
			Status:   domain.ParticipantJoined,
		})
	}
	return nil
}

func (s *Store) MarkCallParticipantLeft(_ context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	rec, ok := s.calls[callID]
	if !ok {
		return nil
	}
	for i := range rec.Participants {
		if rec.Participants[i].UserID == userID && rec.Participants[i].Status == domain.ParticipantJoined {
			left := at
			rec.Participants[i].LeftAt = &left
			rec.Participants[i].Status = domain.ParticipantLeft
		}
	}
	return nil
}

func (s *Store) EndCall(_ context.Context, callID domain.CallID, endedAt time.Time, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if rec, ok := s.calls[callID]; ok {
		ended := endedAt
		rec.Status = domain.CallEnded
		rec.EndedAt = &ended
		rec.DurationSec = int64(duration.Seconds())
	}
	return nil
}

func (s *Store) SetUserStatus(_ context.Context, userID domain.UserID, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	s.status[userID] = userStatus{Online: online, LastSeen: at}
	return nil
}

// Call returns a copy of a persisted call record, for assertions.
func (s *Store) Call(callID domain.CallID) (domain.CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.calls[callID]
	if !ok {
		return domain.CallRecord{}, false
	}
	cp := *rec
	cp.Participants = append([]domain.CallParticipant(nil), rec.Participants...)
	return cp, true
}

// Online reports a user's last persisted presence status.
func (s *Store) Online(userID domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[userID].Online
}
