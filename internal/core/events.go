package core

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"chatline/internal/domain"
)

// Inbound event types. This is a closed set: the ws adapter dispatches
// over exactly these and logs anything else.
const (
	EvtJoinRooms       = "join-rooms"
	EvtSendMessage     = "send-message"
	EvtTypingStart     = "typing-start"
	EvtTypingStop      = "typing-stop"
	EvtInitiateCall    = "initiate-video-call"
	EvtJoinCall        = "join-video-call"
	EvtWebRTCOffer     = "webrtc-offer"
	EvtWebRTCAnswer    = "webrtc-answer"
	EvtWebRTCCandidate = "webrtc-ice-candidate"
	EvtRejectCall      = "reject-call"
	EvtLeaveCall       = "leave-video-call"
	EvtEndCall         = "end-video-call"
)

// Outbound event types.
const (
	EvtNewMessage        = "new-message"
	EvtUserTyping        = "user-typing"
	EvtUserStopTyping    = "user-stop-typing"
	EvtUserStatusChanged = "user-status-changed"
	EvtIncomingCall      = "incoming-call"
	EvtCallInitiated     = "call-initiated"
	EvtCallJoined        = "call-joined"
	EvtParticipantJoined = "participant-joined"
	EvtParticipantLeft   = "participant-left"
	EvtCallRejected      = "call-rejected"
	EvtCallEnded         = "call-ended"
	EvtCallError         = "call-error"
	EvtError             = "error"
)

// Envelope is the wire framing for both directions: an event name plus
// its JSON payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent frames a payload for the wire.
func EncodeEvent(typ string, payload any) (Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}

type UserTypingEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type UserStopTypingEvent struct {
	UserID domain.UserID `json:"userId"`
}

type UserStatusChangedEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Status   string        `json:"status"` // online | offline
}

type IncomingCallEvent struct {
	CallID    domain.CallID   `json:"callId"`
	RoomID    domain.RoomID   `json:"roomId"`
	Initiator domain.User     `json:"initiator"`
	CallType  domain.CallType `json:"callType"`
	Ringing   bool            `json:"ringing"`
}

type CallInitiatedEvent struct {
	CallID domain.CallID `json:"callId"`
	RoomID domain.RoomID `json:"roomId"`
}

// CallPeer is a read-only participant view (no transport fields).
type CallPeer struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar,omitempty"`
}

type CallJoinedEvent struct {
	CallID       domain.CallID `json:"callId"`
	Participants []CallPeer    `json:"participants"`
}

type ParticipantJoinedEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar,omitempty"`
}

type ParticipantLeftEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type WebRTCOfferEvent struct {
	FromUserID domain.UserID             `json:"fromUserId"`
	Offer      webrtc.SessionDescription `json:"offer"`
}

type WebRTCAnswerEvent struct {
	FromUserID domain.UserID             `json:"fromUserId"`
	Answer     webrtc.SessionDescription `json:"answer"`
}

type WebRTCCandidateEvent struct {
	FromUserID domain.UserID           `json:"fromUserId"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

type CallRejectedEvent struct {
	RoomID     domain.RoomID `json:"roomId"`
	RejectedBy domain.UserID `json:"rejectedBy"`
}

type CallEndedEvent struct {
	CallID   domain.CallID `json:"callId"`
	Duration int64         `json:"duration"` // seconds
}

type CallErrorEvent struct {
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
