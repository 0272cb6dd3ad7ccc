// Package hub is the in-memory signaling core: the connection
// registry, the room membership index, the call session table and the
// router that moves events between them. All state here lives and dies
// with the process.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"chatline/internal/core"
	"chatline/internal/domain"
)

type connEntry struct {
	conn  core.Conn
	user  domain.User
	rooms map[domain.RoomID]struct{}
}

// Registry maps live connections to their verified identity and joined
// rooms. It is keyed by connection, not by user: a user on several
// devices holds several independent entries, with a secondary
// user-to-connections index for fan-out.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnID]struct{}),
	}
}

func (r *Registry) Attach(conn core.Conn, user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = &connEntry{
		conn:  conn,
		user:  user,
		rooms: make(map[domain.RoomID]struct{}),
	}
	set, ok := r.byUser[user.ID]
	if !ok {
		set = make(map[core.ConnID]struct{})
		r.byUser[user.ID] = set
	}
	set[conn.ID()] = struct{}{}
	log.Info().Str("module", "hub.registry").Str("conn", string(conn.ID())).Str("user", string(user.ID)).Msg("connection attached")
}

// DetachResult tells the caller what cleanup the departed connection
// needs: the rooms it had joined, the subset of those rooms where no
// other connection of the same user remains, and whether this was the
// user's last connection overall.
type DetachResult struct {
	User     domain.User
	Rooms    []domain.RoomID
	Vacated  []domain.RoomID
	LastConn bool
}

// Detach is idempotent: detaching an unknown connection reports ok=false
// and changes nothing.
func (r *Registry) Detach(connID core.ConnID) (DetachResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connID]
	if !ok {
		return DetachResult{}, false
	}
	delete(r.conns, connID)

	siblings := r.byUser[entry.user.ID]
	delete(siblings, connID)
	if len(siblings) == 0 {
		delete(r.byUser, entry.user.ID)
	}

	res := DetachResult{User: entry.user, LastConn: len(siblings) == 0}
	for roomID := range entry.rooms {
		res.Rooms = append(res.Rooms, roomID)
		stillThere := false
		for sibling := range siblings {
			if _, joined := r.conns[sibling].rooms[roomID]; joined {
				stillThere = true
				break
			}
		}
		if !stillThere {
			res.Vacated = append(res.Vacated, roomID)
		}
	}
	log.Info().Str("module", "hub.registry").Str("conn", string(connID)).Str("user", string(entry.user.ID)).Bool("last_conn", res.LastConn).Msg("connection detached")
	return res, true
}

// Lookup resolves every live connection of a user, across devices.
func (r *Registry) Lookup(userID domain.UserID) []core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]core.Conn, 0, len(set))
	for connID := range set {
		if entry, ok := r.conns[connID]; ok {
			out = append(out, entry.conn)
		}
	}
	return out
}

func (r *Registry) Conn(connID core.ConnID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

func (r *Registry) UserOf(connID core.ConnID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	if !ok {
		return domain.User{}, false
	}
	return entry.user, true
}

// User resolves an identity by user id through any of its live
// connections.
func (r *Registry) User(userID domain.UserID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID := range r.byUser[userID] {
		if entry, ok := r.conns[connID]; ok {
			return entry.user, true
		}
	}
	return domain.User{}, false
}

func (r *Registry) MarkJoined(connID core.ConnID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connID]
	if !ok {
		return false
	}
	entry.rooms[roomID] = struct{}{}
	return true
}

func (r *Registry) RoomsOf(connID core.ConnID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(entry.rooms))
	for roomID := range entry.rooms {
		out = append(out, roomID)
	}
	return out
}
