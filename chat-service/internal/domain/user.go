package domain

import "time"

// Identity is an authenticated principal attached to a connection.
type Identity struct {
	UserID   string
	Username string
}

// User is a chat participant as seen by the core.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
