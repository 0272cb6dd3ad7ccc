// Package core holds the contracts between the signaling hub and its
// adapters: connection handles, the wire event vocabulary, the
// persistence collaborator and the domain error taxonomy.
package core

// Frame is a raw payload ready to go out on the wire.
type Frame []byte

// ConnID identifies one live transport connection. A user with several
// devices holds several ConnIDs at once.
type ConnID string

// Conn is the transport endpoint the hub fans out to.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() ConnID
	// TrySend must not block: a slow or dead peer returns an error
	// and the frame is dropped for that connection only.
	TrySend(Frame) error
	Close()
}
