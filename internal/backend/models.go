// Package backend is the persistence collaborator for rooms, channels,
// messages and reactions, with row-level change notifications.
package backend

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("backend: not found")

// Table names, shared by storage and the change feed.
const (
	TableRooms     = "rooms"
	TableChannels  = "channels"
	TableMessages  = "messages"
	TableReactions = "reactions"
)

// Room is an ephemeral workspace. Rooms carry no name or owner; the id is
// the invitation.
type Room struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is a named, ordered chat channel inside a room.
type Channel struct {
	ID        string
	RoomID    string
	Name      string
	Order     int
	CreatedBy string
	CreatedAt time.Time
}

// Message is one chat message. ParentID threads it under another message;
// FileURL optionally attaches a file.
type Message struct {
	ID         string
	ChannelID  string
	Content    string
	AuthorID   string
	AuthorName string
	ParentID   string
	FileURL    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reaction is one emoji reaction on a message.
type Reaction struct {
	ID        string
	MessageID string
	Emoji     string
	AuthorID  string
	CreatedAt time.Time
}
