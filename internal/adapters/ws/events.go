package ws

import (
	"github.com/pion/webrtc/v4"

	"chatline/internal/domain"
)

// Inbound payload shapes, one struct per event in the closed
// vocabulary. Decoding failures drop the event with a log line.

type sendMessagePayload struct {
	Room        domain.RoomID      `json:"room"`
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"messageType"`
	FileURL     string             `json:"fileUrl"`
	FileName    string             `json:"fileName"`
	FileSize    int64              `json:"fileSize"`
	ReplyTo     string             `json:"replyTo"`
}

type typingPayload struct {
	Room domain.RoomID `json:"room"`
}

type initiateCallPayload struct {
	RoomID   domain.RoomID   `json:"roomId"`
	CallType domain.CallType `json:"callType"`
}

type callRoomPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type offerPayload struct {
	RoomID       domain.RoomID             `json:"roomId"`
	TargetUserID domain.UserID             `json:"targetUserId"`
	Offer        webrtc.SessionDescription `json:"offer"`
}

type answerPayload struct {
	RoomID       domain.RoomID             `json:"roomId"`
	TargetUserID domain.UserID             `json:"targetUserId"`
	Answer       webrtc.SessionDescription `json:"answer"`
}

type candidatePayload struct {
	RoomID       domain.RoomID           `json:"roomId"`
	TargetUserID domain.UserID           `json:"targetUserId"`
	Candidate    webrtc.ICECandidateInit `json:"candidate"`
}
