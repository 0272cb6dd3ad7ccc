package core

import (
	"context"
	"time"

	"chatline/internal/domain"
)

// Store is the durable persistence collaborator. The hub only ever
// talks to this interface; message and call history survive restarts
// there, never in the hub's tables.
type Store interface {
	SaveMessage(ctx context.Context, m *domain.Message) error
	MessagesByRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)

	CreateCall(ctx context.Context, c *domain.CallRecord) error
	AddCallParticipant(ctx context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error
	MarkCallParticipantLeft(ctx context.Context, callID domain.CallID, userID domain.UserID, at time.Time) error
	EndCall(ctx context.Context, callID domain.CallID, endedAt time.Time, duration time.Duration) error

	SetUserStatus(ctx context.Context, userID domain.UserID, online bool, at time.Time) error
}
