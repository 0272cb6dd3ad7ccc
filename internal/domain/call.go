package domain

import "time"

type CallID string

type CallType string

const (
	CallVideo CallType = "video"
	CallAudio CallType = "audio"
)

type CallStatus string

const (
	CallActive CallStatus = "active"
	CallEnded  CallStatus = "ended"
)

type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
)

type CallParticipant struct {
	UserID   UserID            `json:"user"`
	JoinedAt time.Time         `json:"joinedAt"`
	LeftAt   *time.Time        `json:"leftAt,omitempty"`
	Status   ParticipantStatus `json:"status"`
}

// CallRecord is the durable trace of a call: who started it, who took
// part and for how long. The live negotiation state lives in the hub's
// call session table, not here.
type CallRecord struct {
	ID           CallID            `json:"id"`
	RoomID       RoomID            `json:"roomId"`
	InitiatorID  UserID            `json:"initiator"`
	Type         CallType          `json:"callType"`
	Status       CallStatus        `json:"status"`
	StartedAt    time.Time         `json:"startedAt"`
	EndedAt      *time.Time        `json:"endedAt,omitempty"`
	DurationSec  int64             `json:"duration,omitempty"`
	Participants []CallParticipant `json:"participants"`
}
