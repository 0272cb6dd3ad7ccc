package hub

import (
	"sync"

	"chatline/internal/domain"
)

// RoomIndex maps a room to the set of users currently connected and
// subscribed. Entries appear lazily on first join and may sit empty;
// nothing depends on them disappearing. State is rebuilt purely from
// join calls, clients re-announce their rooms on every reconnect.
type RoomIndex struct {
	mu      sync.RWMutex
	members map[domain.RoomID]map[domain.UserID]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{members: make(map[domain.RoomID]map[domain.UserID]struct{})}
}

// Join is an idempotent add, safe for rooms with no prior members.
func (x *RoomIndex) Join(roomID domain.RoomID, userID domain.UserID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.members[roomID]
	if !ok {
		set = make(map[domain.UserID]struct{})
		x.members[roomID] = set
	}
	set[userID] = struct{}{}
}

// Leave is an idempotent remove.
func (x *RoomIndex) Leave(roomID domain.RoomID, userID domain.UserID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if set, ok := x.members[roomID]; ok {
		delete(set, userID)
	}
}

// MembersOf returns a point-in-time snapshot of the room's members.
func (x *RoomIndex) MembersOf(roomID domain.RoomID) []domain.UserID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.members[roomID]
	out := make([]domain.UserID, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

func (x *RoomIndex) Contains(roomID domain.RoomID, userID domain.UserID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.members[roomID][userID]
	return ok
}
