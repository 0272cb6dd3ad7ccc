package domain

// RoomID names a channel: public, private, or a synthesized 1:1
// conversation identifier. The signaling core treats it as opaque.
type RoomID string
