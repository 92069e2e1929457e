package chat

import (
	"strings"
	"time"
)

// Message kinds.
const (
	KindText   = "text"
	KindSystem = "system"
)

// User is the identity bound to one live connection.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}

// Member returns the roster entry for the user.
func (u User) Member() Member {
	return Member{ID: u.ID, Username: u.Username}
}

// Message represents a chat message. Messages are immutable once created.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"type"`
}

// Member is one entry of a room roster.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomSummary is a room name with its current member count.
type RoomSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FoldUsername returns the key used for case-insensitive username comparison.
func FoldUsername(username string) string {
	return strings.ToLower(username)
}
