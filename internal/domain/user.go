// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// User is the verified identity behind a connection. Credential
// checking happens before the signaling core ever sees it.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string) (*User, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{ID: id, Username: username}, nil
}
