package core

import "errors"

var (
	// ErrCallAlreadyActive rejects a second initiate while a room
	// already has a live call session.
	ErrCallAlreadyActive = errors.New("call already active in room")

	// ErrCallNotFound rejects call operations against a room with no
	// live session.
	ErrCallNotFound = errors.New("call not found")

	// ErrNotInitiator rejects end-call from anyone but the user who
	// started the call.
	ErrNotInitiator = errors.New("only the call initiator can end the call")

	// ErrTargetUnreachable means the intended recipient has no live
	// connection. Negotiation relays drop silently on this; user-facing
	// actions surface it.
	ErrTargetUnreachable = errors.New("target user not connected")
)
