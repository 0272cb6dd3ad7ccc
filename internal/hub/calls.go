package hub

import (
	"sync"
	"time"

	"chatline/internal/core"
	"chatline/internal/domain"
)

type callState int

const (
	callInitiating callState = iota
	callActive
)

// callSession is the live negotiation state of one call. At most one
// session exists per room. Only the CallTable touches it, under its
// own mutex.
type callSession struct {
	recordID    domain.CallID
	roomID      domain.RoomID
	initiatorID domain.UserID
	callType    domain.CallType
	startedAt   time.Time
	state       callState

	// participants maps each joined user to the connection it joined
	// from. Back-references only: the registry owns the connections.
	participants map[domain.UserID]core.ConnID
}

// CallView is a point-in-time snapshot of a session, safe to read
// after the table mutex is released.
type CallView struct {
	RecordID     domain.CallID
	RoomID       domain.RoomID
	InitiatorID  domain.UserID
	Type         domain.CallType
	StartedAt    time.Time
	Initiating   bool
	Participants map[domain.UserID]core.ConnID
}

// CallTable holds the per-room call sessions plus a keyed mutex per
// room. Every call operation for a room runs under that room's lock,
// including any suspension on the persistence collaborator, so two
// near-simultaneous initiates serialize and the second one observes
// the first one's session.
type CallTable struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*callSession
	locks    map[domain.RoomID]*sync.Mutex
}

func NewCallTable() *CallTable {
	return &CallTable{
		sessions: make(map[domain.RoomID]*callSession),
		locks:    make(map[domain.RoomID]*sync.Mutex),
	}
}

// LockRoom acquires the room's call lock and returns the unlock func.
// Lock entries are created on demand and kept; like room membership
// entries they are small and never pruned.
func (t *CallTable) LockRoom(roomID domain.RoomID) func() {
	t.mu.Lock()
	lk, ok := t.locks[roomID]
	if !ok {
		lk = &sync.Mutex{}
		t.locks[roomID] = lk
	}
	t.mu.Unlock()
	lk.Lock()
	return lk.Unlock
}

func (t *CallTable) Get(roomID domain.RoomID) (CallView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[roomID]
	if !ok {
		return CallView{}, false
	}
	return sess.view(), true
}

func (s *callSession) view() CallView {
	parts := make(map[domain.UserID]core.ConnID, len(s.participants))
	for userID, connID := range s.participants {
		parts[userID] = connID
	}
	return CallView{
		RecordID:     s.recordID,
		RoomID:       s.roomID,
		InitiatorID:  s.initiatorID,
		Type:         s.callType,
		StartedAt:    s.startedAt,
		Initiating:   s.state == callInitiating,
		Participants: parts,
	}
}

// Create inserts a fresh session in the initiating state with the
// initiator as sole participant.
func (t *CallTable) Create(recordID domain.CallID, roomID domain.RoomID, initiator domain.UserID, connID core.ConnID, callType domain.CallType, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[roomID] = &callSession{
		recordID:     recordID,
		roomID:       roomID,
		initiatorID:  initiator,
		callType:     callType,
		startedAt:    startedAt,
		state:        callInitiating,
		participants: map[domain.UserID]core.ConnID{initiator: connID},
	}
}

// AddParticipant records a joiner and moves the session to active.
func (t *CallTable) AddParticipant(roomID domain.RoomID, userID domain.UserID, connID core.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sess, ok := t.sessions[roomID]; ok {
		sess.participants[userID] = connID
		sess.state = callActive
	}
}

// RemoveParticipant drops one participant and reports how many remain.
func (t *CallTable) RemoveParticipant(roomID domain.RoomID, userID domain.UserID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[roomID]
	if !ok {
		return 0
	}
	delete(sess.participants, userID)
	return len(sess.participants)
}

func (t *CallTable) Delete(roomID domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, roomID)
}

// RoomsWithConn lists rooms whose session has a participant entry bound
// to the given connection. Used by the disconnect cascade.
func (t *CallTable) RoomsWithConn(connID core.ConnID) []domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.RoomID
	for roomID, sess := range t.sessions {
		for _, cid := range sess.participants {
			if cid == connID {
				out = append(out, roomID)
				break
			}
		}
	}
	return out
}
