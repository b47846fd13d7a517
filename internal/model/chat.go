package model

import "time"

// ChatRoom is a joined chat room, keyed by broadcaster id in the
// channel's room map. Created on join, removed on leave or when a
// forced disconnect tears the map down.
type ChatRoom struct {
	BroadcasterID   string
	BroadcasterName string
	JoinedAt        time.Time
}

// OutboundMessage is one queued chat send. ReplyTo carries the parent
// message id for threaded replies and is empty for plain messages.
type OutboundMessage struct {
	Room    string
	ReplyTo string
	Text    string
}

// ChatMessage is a parsed PRIVMSG.
type ChatMessage struct {
	ID           string
	Channel      string
	UserID       string
	UserLogin    string
	DisplayName  string
	Text         string
	Badges       map[string]int
	Color        string
	IsModerator  bool
	IsSubscriber bool
	SentAt       time.Time
}

// Whisper is a parsed WHISPER line.
type Whisper struct {
	UserID      string
	UserLogin   string
	DisplayName string
	Text        string
}
