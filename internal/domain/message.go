package domain

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Message is a chat message as persisted and broadcast. SenderName and
// SenderAvatar are resolved from the connection identity so receivers
// never need a second lookup.
type Message struct {
	ID           string      `json:"id"`
	RoomID       RoomID      `json:"room"`
	SenderID     UserID      `json:"sender"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar,omitempty"`
	Content      string      `json:"content"`
	Type         MessageType `json:"messageType"`
	FileURL      string      `json:"fileUrl,omitempty"`
	FileName     string      `json:"fileName,omitempty"`
	FileSize     int64       `json:"fileSize,omitempty"`
	ReplyTo      string      `json:"replyTo,omitempty"`
	SentAt       time.Time   `json:"createdAt"`
}
