package models

import "time"

// MessageEvent is a normalized inbound message from the webhook.
type MessageEvent struct {
	SenderID  int64     `json:"senderId"`
	RoomID    int64     `json:"roomId"`
	MessageID string    `json:"messageId"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Room represents a Chatwork room with its live counters.
type Room struct {
	RoomID     int64  `json:"room_id"`
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	MessageNum int    `json:"message_num"`
	FileNum    int    `json:"file_num"`
	TaskNum    int    `json:"task_num"`
	IconPath   string `json:"icon_path,omitempty"`
}

// Member represents a room member and their role.
type Member struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// Member roles as reported by the Chatwork API.
const (
	RoleAdmin    = "admin"
	RoleMember   = "member"
	RoleReadonly = "readonly"
)

// RoomSnapshot is a persisted copy of the room list counters, used as the
// baseline for ranking diffs. Snapshots are append-only; a new snapshot
// supersedes the previous one without merging.
type RoomSnapshot struct {
	Rooms      []Room    `json:"rooms"`
	Day        string    `json:"day"`
	Hour       int       `json:"hour"`
	CapturedAt time.Time `json:"capturedAt"`
}

// RankingEntry is one row of the per-sender daily message ranking.
type RankingEntry struct {
	AccountID int64 `json:"account_id"`
	Count     int   `json:"count"`
}
