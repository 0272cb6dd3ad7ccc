package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chatline/internal/core"
	"chatline/internal/domain"
)

const (
	msgSendFailed     = "Failed to send message"
	msgCallActive     = "A call is already active in this room"
	msgCallNotFound   = "Call not found"
	msgCallInitFailed = "Failed to initiate call"
	msgCallJoinFailed = "Failed to join call"
	msgCallEndFailed  = "Failed to end call"
	msgNotInitiator   = "Only the call initiator can end the call"
)

// Hub is the signaling router. It owns the three in-memory tables and
// is the only thing that mutates them; adapters hand it events and
// connection handles, nothing more. Domain failures go back to the
// originating connection only and never terminate it.
type Hub struct {
	registry *Registry
	rooms    *RoomIndex
	calls    *CallTable
	store    core.Store
}

func New(store core.Store) *Hub {
	return &Hub{
		registry: NewRegistry(),
		rooms:    NewRoomIndex(),
		calls:    NewCallTable(),
		store:    store,
	}
}

// Attach registers a live connection for a verified identity. The
// identity was checked upstream; the hub never sees credentials.
func (h *Hub) Attach(ctx context.Context, conn core.Conn, user domain.User) {
	h.registry.Attach(conn, user)
	if err := h.store.SetUserStatus(ctx, user.ID, true, time.Now().UTC()); err != nil {
		log.Warn().Str("module", "hub").Str("user", string(user.ID)).Err(err).Msg("persist online status")
	}
}

// Detach removes the connection and cascades: call participations are
// left as if the user had left explicitly, vacated rooms are cleaned
// up, and an offline transition is announced when this was the user's
// last connection. Idempotent.
func (h *Hub) Detach(ctx context.Context, connID core.ConnID) {
	res, ok := h.registry.Detach(connID)
	if !ok {
		return
	}
	for _, roomID := range h.calls.RoomsWithConn(connID) {
		h.leaveParticipant(ctx, res.User, connID, roomID)
	}
	for _, roomID := range res.Vacated {
		h.rooms.Leave(roomID, res.User.ID)
	}
	if res.LastConn {
		if err := h.store.SetUserStatus(ctx, res.User.ID, false, time.Now().UTC()); err != nil {
			log.Warn().Str("module", "hub").Str("user", string(res.User.ID)).Err(err).Msg("persist offline status")
		}
		h.announceStatus(res.User, res.Vacated, StatusOffline)
	}
}

// JoinRooms subscribes the connection to its rooms and announces the
// user online to every peer in them.
func (h *Hub) JoinRooms(ctx context.Context, conn core.Conn, roomIDs []domain.RoomID) {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	for _, roomID := range roomIDs {
		h.rooms.Join(roomID, user.ID)
		h.registry.MarkJoined(conn.ID(), roomID)
	}
	log.Info().Str("module", "hub").Str("user", string(user.ID)).Int("rooms", len(roomIDs)).Msg("joined rooms")
	h.announceStatus(user, roomIDs, StatusOnline)
}

// MessageInput is what a client supplies with send-message; sender
// identity and timestamps are resolved server-side.
type MessageInput struct {
	RoomID   domain.RoomID
	Content  string
	Type     domain.MessageType
	FileURL  string
	FileName string
	FileSize int64
	ReplyTo  string
}

// RouteMessage persists the message and then broadcasts it to every
// live connection of every room member, the sender's other devices
// included. Persist-then-broadcast: a failed forward to one stale
// connection neither blocks the others nor rolls the write back. A
// room with nobody else connected still gets the persistence write.
func (h *Hub) RouteMessage(ctx context.Context, conn core.Conn, in MessageInput) (int, error) {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return 0, nil
	}
	msgType := in.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	msg := &domain.Message{
		ID:           uuid.NewString(),
		RoomID:       in.RoomID,
		SenderID:     user.ID,
		SenderName:   user.Username,
		SenderAvatar: user.Avatar,
		Content:      in.Content,
		Type:         msgType,
		FileURL:      in.FileURL,
		FileName:     in.FileName,
		FileSize:     in.FileSize,
		ReplyTo:      in.ReplyTo,
		SentAt:       time.Now().UTC(),
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.send(conn, core.EvtError, core.ErrorEvent{Message: msgSendFailed})
		return 0, fmt.Errorf("save message: %w", err)
	}
	n := h.broadcastRoom(in.RoomID, "", core.EvtNewMessage, msg)
	log.Debug().Str("module", "hub").Str("room", string(in.RoomID)).Str("msg", msg.ID).Int("delivered", n).Msg("message routed")
	return n, nil
}

// RouteTyping fans a typing indicator out to the other room members.
// Nothing is persisted.
func (h *Hub) RouteTyping(conn core.Conn, roomID domain.RoomID, typing bool) {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	if typing {
		h.broadcastRoom(roomID, user.ID, core.EvtUserTyping, core.UserTypingEvent{UserID: user.ID, Username: user.Username})
		return
	}
	h.broadcastRoom(roomID, user.ID, core.EvtUserStopTyping, core.UserStopTypingEvent{UserID: user.ID})
}

// InitiateCall starts a call in a room with no live session. The whole
// operation, persistence write included, runs under the room's call
// lock: a concurrent initiate for the same room waits and then fails
// with ErrCallAlreadyActive.
func (h *Hub) InitiateCall(ctx context.Context, conn core.Conn, roomID domain.RoomID, callType domain.CallType) error {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return nil
	}
	if callType == "" {
		callType = domain.CallVideo
	}
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	if _, exists := h.calls.Get(roomID); exists {
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallActive})
		return core.ErrCallAlreadyActive
	}
	now := time.Now().UTC()
	rec := &domain.CallRecord{
		ID:          domain.CallID(uuid.NewString()),
		RoomID:      roomID,
		InitiatorID: user.ID,
		Type:        callType,
		Status:      domain.CallActive,
		StartedAt:   now,
		Participants: []domain.CallParticipant{
			{UserID: user.ID, JoinedAt: now, Status: domain.ParticipantJoined},
		},
	}
	if err := h.store.CreateCall(ctx, rec); err != nil {
		// No session was inserted yet, so there is nothing to roll back.
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallInitFailed})
		return fmt.Errorf("create call: %w", err)
	}
	h.calls.Create(rec.ID, roomID, user.ID, conn.ID(), callType, now)

	// Ring everyone else in the room via the membership index. If no
	// peer is connected the call simply stays ringing; timing out is
	// the caller's concern.
	rang := 0
	incoming := core.IncomingCallEvent{
		CallID:    rec.ID,
		RoomID:    roomID,
		Initiator: user,
		CallType:  callType,
		Ringing:   true,
	}
	for _, member := range h.rooms.MembersOf(roomID) {
		if member == user.ID {
			continue
		}
		rang += h.sendToUser(member, core.EvtIncomingCall, incoming)
	}
	if rang == 0 {
		log.Info().Str("module", "hub").Str("room", string(roomID)).Msg("no peer connected, call keeps ringing")
	}
	h.send(conn, core.EvtCallInitiated, core.CallInitiatedEvent{CallID: rec.ID, RoomID: roomID})
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("call", string(rec.ID)).Str("initiator", string(user.ID)).Msg("call initiated")
	return nil
}

// JoinCall adds the caller to the room's live call, tells the existing
// participants, and hands the joiner the current participant list so
// it can open a peer connection to each.
func (h *Hub) JoinCall(ctx context.Context, conn core.Conn, roomID domain.RoomID) error {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return nil
	}
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	view, exists := h.calls.Get(roomID)
	if !exists {
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallNotFound})
		return core.ErrCallNotFound
	}
	if err := h.store.AddCallParticipant(ctx, view.RecordID, user.ID, time.Now().UTC()); err != nil {
		// Table untouched so far: failing here leaves no orphan.
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallJoinFailed})
		return fmt.Errorf("add call participant: %w", err)
	}
	h.calls.AddParticipant(roomID, user.ID, conn.ID())

	// view still holds the pre-join participant set.
	h.notifyParticipants(view, user.ID, core.EvtParticipantJoined, core.ParticipantJoinedEvent{
		UserID:   user.ID,
		Username: user.Username,
		Avatar:   user.Avatar,
	})

	fresh, _ := h.calls.Get(roomID)
	peers := make([]core.CallPeer, 0, len(fresh.Participants))
	for userID := range fresh.Participants {
		if u, known := h.registry.User(userID); known {
			peers = append(peers, core.CallPeer{UserID: u.ID, Username: u.Username, Avatar: u.Avatar})
			continue
		}
		peers = append(peers, core.CallPeer{UserID: userID})
	}
	h.send(conn, core.EvtCallJoined, core.CallJoinedEvent{CallID: fresh.RecordID, Participants: peers})
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("user", string(user.ID)).Int("participants", len(peers)).Msg("joined call")
	return nil
}

// RelayOffer passes a session description to one call participant.
// Negotiation messages racing a departed peer are expected; they drop
// silently.
func (h *Hub) RelayOffer(conn core.Conn, roomID domain.RoomID, target domain.UserID, offer webrtc.SessionDescription) {
	from, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	h.relay(roomID, target, core.EvtWebRTCOffer, core.WebRTCOfferEvent{FromUserID: from.ID, Offer: offer})
}

func (h *Hub) RelayAnswer(conn core.Conn, roomID domain.RoomID, target domain.UserID, answer webrtc.SessionDescription) {
	from, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	h.relay(roomID, target, core.EvtWebRTCAnswer, core.WebRTCAnswerEvent{FromUserID: from.ID, Answer: answer})
}

func (h *Hub) RelayCandidate(conn core.Conn, roomID domain.RoomID, target domain.UserID, cand webrtc.ICECandidateInit) {
	from, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	h.relay(roomID, target, core.EvtWebRTCCandidate, core.WebRTCCandidateEvent{FromUserID: from.ID, Candidate: cand})
}

// RejectCall declines a still-ringing call: the initiator is told and
// the session is dropped. Once anyone has joined, reject is a no-op.
func (h *Hub) RejectCall(ctx context.Context, conn core.Conn, roomID domain.RoomID) {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	view, exists := h.calls.Get(roomID)
	if !exists {
		log.Debug().Str("module", "hub").Str("room", string(roomID)).Msg("reject for room without call, dropped")
		return
	}
	if !view.Initiating {
		log.Debug().Str("module", "hub").Str("room", string(roomID)).Msg("reject after call answered, dropped")
		return
	}
	h.sendToUser(view.InitiatorID, core.EvtCallRejected, core.CallRejectedEvent{RoomID: roomID, RejectedBy: user.ID})
	if err := h.store.EndCall(ctx, view.RecordID, time.Now().UTC(), 0); err != nil {
		log.Warn().Str("module", "hub").Str("call", string(view.RecordID)).Err(err).Msg("persist rejected call")
	}
	h.calls.Delete(roomID)
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("user", string(user.ID)).Msg("call rejected")
}

// LeaveCall removes the caller from the room's call; when the last
// participant leaves the call ends.
func (h *Hub) LeaveCall(ctx context.Context, conn core.Conn, roomID domain.RoomID) {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return
	}
	h.leaveParticipant(ctx, user, conn.ID(), roomID)
}

// EndCall terminates the call for everyone. Only the initiator may do
// this; the terminal persistence write happens before the session is
// removed, and a failed write leaves the session as it was.
func (h *Hub) EndCall(ctx context.Context, conn core.Conn, roomID domain.RoomID) error {
	user, ok := h.registry.UserOf(conn.ID())
	if !ok {
		return nil
	}
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	view, exists := h.calls.Get(roomID)
	if !exists {
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallNotFound})
		return core.ErrCallNotFound
	}
	if view.InitiatorID != user.ID {
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgNotInitiator})
		return core.ErrNotInitiator
	}
	now := time.Now().UTC()
	duration := now.Sub(view.StartedAt)
	if err := h.store.EndCall(ctx, view.RecordID, now, duration); err != nil {
		h.send(conn, core.EvtCallError, core.CallErrorEvent{Message: msgCallEndFailed})
		return fmt.Errorf("end call: %w", err)
	}
	h.notifyParticipants(view, "", core.EvtCallEnded, core.CallEndedEvent{
		CallID:   view.RecordID,
		Duration: int64(duration.Seconds()),
	})
	h.calls.Delete(roomID)
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("call", string(view.RecordID)).Msg("call ended")
	return nil
}

func (h *Hub) leaveParticipant(ctx context.Context, user domain.User, connID core.ConnID, roomID domain.RoomID) {
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	view, exists := h.calls.Get(roomID)
	if !exists {
		return
	}
	boundConn, present := view.Participants[user.ID]
	if !present || boundConn != connID {
		// Another device of the same user is in the call; not ours to touch.
		return
	}
	remaining := h.calls.RemoveParticipant(roomID, user.ID)
	if err := h.store.MarkCallParticipantLeft(ctx, view.RecordID, user.ID, time.Now().UTC()); err != nil {
		log.Warn().Str("module", "hub").Str("call", string(view.RecordID)).Str("user", string(user.ID)).Err(err).Msg("persist participant left")
	}
	if remaining == 0 {
		h.finishCall(ctx, view)
		return
	}
	fresh, _ := h.calls.Get(roomID)
	h.notifyParticipants(fresh, user.ID, core.EvtParticipantLeft, core.ParticipantLeftEvent{
		UserID:   user.ID,
		Username: user.Username,
	})
	log.Info().Str("module", "hub").Str("room", string(roomID)).Str("user", string(user.ID)).Int("remaining", remaining).Msg("left call")
}

// finishCall writes the terminal record and drops the session. Callers
// hold the room's call lock. The write is best-effort: with nobody
// left in the call there is no connection to surface a failure to.
func (h *Hub) finishCall(ctx context.Context, view CallView) {
	now := time.Now().UTC()
	duration := now.Sub(view.StartedAt)
	if err := h.store.EndCall(ctx, view.RecordID, now, duration); err != nil {
		log.Warn().Str("module", "hub").Str("call", string(view.RecordID)).Err(err).Msg("persist call end")
	}
	h.calls.Delete(view.RoomID)
	log.Info().Str("module", "hub").Str("room", string(view.RoomID)).Str("call", string(view.RecordID)).Int64("duration_sec", int64(duration.Seconds())).Msg("call finished")
}

func (h *Hub) relay(roomID domain.RoomID, target domain.UserID, typ string, payload any) {
	unlock := h.calls.LockRoom(roomID)
	defer unlock()

	view, exists := h.calls.Get(roomID)
	if !exists {
		log.Debug().Str("module", "hub").Str("room", string(roomID)).Str("event", typ).Msg("no active call, signal dropped")
		return
	}
	connID, present := view.Participants[target]
	if !present {
		log.Debug().Str("module", "hub").Str("room", string(roomID)).Str("target", string(target)).Str("event", typ).Msg("target not in call, signal dropped")
		return
	}
	conn, alive := h.registry.Conn(connID)
	if !alive {
		// A session pointing at a connection the registry no longer
		// knows is an invariant violation: the disconnect cascade
		// should have removed it. Tear the entry down.
		log.Error().Str("module", "hub").Str("room", string(roomID)).Str("target", string(target)).Str("conn", string(connID)).Msg("call participant bound to dead connection, pruning")
		if h.calls.RemoveParticipant(roomID, target) == 0 {
			h.finishCall(context.Background(), view)
		}
		return
	}
	frame, err := core.EncodeEvent(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Str("event", typ).Err(err).Msg("encode relay event")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Debug().Str("module", "hub").Str("target", string(target)).Str("event", typ).Err(err).Msg("relay dropped")
	}
}

// notifyParticipants fans an event out to the session's participants,
// optionally excluding one user. Participants bound to dead
// connections are pruned on sight.
func (h *Hub) notifyParticipants(view CallView, exclude domain.UserID, typ string, payload any) {
	frame, err := core.EncodeEvent(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Str("event", typ).Err(err).Msg("encode event")
		return
	}
	for userID, connID := range view.Participants {
		if userID == exclude {
			continue
		}
		conn, alive := h.registry.Conn(connID)
		if !alive {
			log.Error().Str("module", "hub").Str("room", string(view.RoomID)).Str("user", string(userID)).Msg("call participant bound to dead connection, pruning")
			h.calls.RemoveParticipant(view.RoomID, userID)
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Debug().Str("module", "hub").Str("user", string(userID)).Str("event", typ).Err(err).Msg("notify dropped")
		}
	}
}

func (h *Hub) send(conn core.Conn, typ string, payload any) {
	frame, err := core.EncodeEvent(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Str("event", typ).Err(err).Msg("encode event")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Debug().Str("module", "hub").Str("conn", string(conn.ID())).Str("event", typ).Err(err).Msg("send dropped")
	}
}

func (h *Hub) sendToUser(userID domain.UserID, typ string, payload any) int {
	frame, err := core.EncodeEvent(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Str("event", typ).Err(err).Msg("encode event")
		return 0
	}
	n := 0
	for _, conn := range h.registry.Lookup(userID) {
		if err := conn.TrySend(frame); err != nil {
			log.Debug().Str("module", "hub").Str("user", string(userID)).Str("event", typ).Err(err).Msg("send dropped")
			continue
		}
		n++
	}
	return n
}

// broadcastRoom delivers one event to every connection of every room
// member, except the excluded user. Fire-and-forget per connection.
func (h *Hub) broadcastRoom(roomID domain.RoomID, exclude domain.UserID, typ string, payload any) int {
	frame, err := core.EncodeEvent(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Str("event", typ).Err(err).Msg("encode event")
		return 0
	}
	n := 0
	for _, member := range h.rooms.MembersOf(roomID) {
		if member == exclude {
			continue
		}
		for _, conn := range h.registry.Lookup(member) {
			if err := conn.TrySend(frame); err != nil {
				log.Debug().Str("module", "hub").Str("user", string(member)).Str("event", typ).Err(err).Msg("broadcast dropped")
				continue
			}
			n++
		}
	}
	return n
}
