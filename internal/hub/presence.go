package hub

import (
	"chatline/internal/core"
	"chatline/internal/domain"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// announceStatus fans an online/offline transition out to every other
// member of every given room; self-notification is suppressed. It runs
// synchronously on the connection's read loop at join time, before the
// connection accepts further input, so peers always observe a user's
// online announcement before anything that user subsequently sends.
func (h *Hub) announceStatus(user domain.User, rooms []domain.RoomID, status string) {
	evt := core.UserStatusChangedEvent{UserID: user.ID, Username: user.Username, Status: status}
	for _, roomID := range rooms {
		h.broadcastRoom(roomID, user.ID, core.EvtUserStatusChanged, evt)
	}
}
