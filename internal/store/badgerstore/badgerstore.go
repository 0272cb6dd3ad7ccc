// Package badgerstore persists messages, call records and user status
// in BadgerDB. Values are JSON; message keys embed the send time so a
// prefix scan returns room history in order.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"chatline/internal/domain"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database, handy for tests.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	log.Info().Str("module", "store.badger").Str("path", path).Msg("store opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func msgKey(roomID domain.RoomID, sentAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d:%s", roomID, sentAt.UnixNano(), id))
}

func msgPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", roomID))
}

func callKey(callID domain.CallID) []byte {
	return []byte("call:" + callID)
}

func userKey(userID domain.UserID) []byte {
	return []byte("user:" + userID)
}

func (s *Store) SaveMessage(_ context.Context, m *domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msgKey(m.RoomID, m.SentAt, m.ID), data)
	})
}

// MessagesByRoom returns the room's most recent messages, oldest
// first. A limit of zero means no limit.
func (s *Store) MessagesByRoom(_ context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	prefix := msgPrefix(roomID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse scan from just past the prefix picks up the newest
		// keys first.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(msgs) >= limit {
				break
			}
			err := it.Item().Value(func(v []byte) error {
				var m domain.Message
				if err := json.Unmarshal(v, &m); err != nil {
					return fmt.Errorf("unmarshal message: %w", err)
				}
				msgs = append(msgs, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) CreateCall(_ context.Context, c *domain.CallRecord) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal call: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(callKey(c.ID), data)
	})
}

func (s *Store) AddCallParticipant(_ context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error {
	return s.updateCall(callID, func(rec *domain.CallRecord) {
		rec.Participants = append(rec.Participants, domain.CallParticipant{
			UserID:   userID,
			JoinedAt: at,
			Status:   domain.ParticipantJoined,
		})
	})
}

func (s *Store) MarkCallParticipantLeft(_ context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error {
	return s.updateCall(callID, func(rec *domain.CallRecord) {
		for i := range rec.Participants {
			if rec.Participants[i].UserID == userID && rec.Participants[i].Status == domain.ParticipantJoined {
				left := at
				rec.Participants[i].LeftAt = &left
				rec.Participants[i].Status = domain.ParticipantLeft
			}
		}
	})
}

func (s *Store) EndCall(_ context.Context, callID domain.CallID, endedAt time.Time, duration time.Duration) error {
	return s.updateCall(callID, func(rec *domain.CallRecord) {
		ended := endedAt
		rec.Status = domain.CallEnded
		rec.EndedAt = &ended
		rec.DurationSec = int64(duration.Seconds())
	})
}

func (s *Store) updateCall(callID domain.CallID, mutate func(*domain.CallRecord)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(callID))
		if err != nil {
			return fmt.Errorf("load call %s: %w", callID, err)
		}
		var rec domain.CallRecord
		err = item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
		if err != nil {
			return fmt.Errorf("unmarshal call %s: %w", callID, err)
		}
		mutate(&rec)
		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal call %s: %w", callID, err)
		}
		return txn.Set(callKey(callID), data)
	})
}

// Call loads one call record.
func (s *Store) Call(_ context.Context, callID domain.CallID) (*domain.CallRecord, error) {
	var rec domain.CallRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(callID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type userStatus struct {
	Online   bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (s *Store) SetUserStatus(_ context.Context, userID domain.UserID, online bool, at time.Time) error {
	data, err := json.Marshal(userStatus{Online: online, LastSeen: at})
	if err != nil {
		return fmt.Errorf("marshal user status: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), data)
	})
}
