package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatline/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestMessages_RoundTripOrderedWithLimit(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three"} {
		req.NoError(s.SaveMessage(ctx, &domain.Message{
			ID:       string(rune('a' + i)),
			RoomID:   "r1",
			SenderID: "alice",
			Content:  content,
			Type:     domain.MessageText,
			SentAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}
	// A message in another room must not leak into r1's history.
	req.NoError(s.SaveMessage(ctx, &domain.Message{
		ID: "x", RoomID: "r2", SenderID: "bob", Content: "elsewhere",
		Type: domain.MessageText, SentAt: base,
	}))

	msgs, err := s.MessagesByRoom(ctx, "r1", 0)
	req.NoError(err)
	req.Len(msgs, 3)
	req.Equal("one", msgs[0].Content)
	req.Equal("three", msgs[2].Content)

	// Limit keeps the newest, still oldest-first.
	msgs, err = s.MessagesByRoom(ctx, "r1", 2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("two", msgs[0].Content)
	req.Equal("three", msgs[1].Content)
}

func TestMessages_EmptyRoom(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	msgs, err := s.MessagesByRoom(context.Background(), "ghost", 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestCall_LifecyclePersistence(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.CallRecord{
		ID:          "call-1",
		RoomID:      "r1",
		InitiatorID: "alice",
		Type:        domain.CallVideo,
		Status:      domain.CallActive,
		StartedAt:   started,
		Participants: []domain.CallParticipant{
			{UserID: "alice", JoinedAt: started, Status: domain.ParticipantJoined},
		},
	}
	req.NoError(s.CreateCall(ctx, rec))
	req.NoError(s.AddCallParticipant(ctx, "call-1", "bob", started.Add(5*time.Second)))
	req.NoError(s.MarkCallParticipantLeft(ctx, "call-1", "bob", started.Add(65*time.Second)))
	req.NoError(s.EndCall(ctx, "call-1", started.Add(70*time.Second), 70*time.Second))

	got, err := s.Call(ctx, "call-1")
	req.NoError(err)
	req.Equal(domain.CallEnded, got.Status)
	req.Equal(int64(70), got.DurationSec)
	req.NotNil(got.EndedAt)
	req.Len(got.Participants, 2)
	req.Equal(domain.ParticipantJoined, got.Participants[0].Status)
	req.Equal(domain.ParticipantLeft, got.Participants[1].Status)
	req.NotNil(got.Participants[1].LeftAt)
}

func TestCall_UpdateMissingCallFails(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	req.Error(s.EndCall(context.Background(), "ghost", time.Now(), time.Minute))
}

func TestUserStatus_Write(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	req.NoError(s.SetUserStatus(context.Background(), "alice", true, time.Now()))
	req.NoError(s.SetUserStatus(context.Background(), "alice", false, time.Now()))
}
