package models

import "time"

// SessionEvent is one persisted room lifecycle event.
type SessionEvent struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	RoomID     string    `json:"room_id" gorm:"type:varchar(64);index"`
	Kind       string    `json:"kind" gorm:"type:varchar(32);index"`
	Role       string    `json:"role,omitempty" gorm:"type:varchar(16)"`
	ClientHash string    `json:"client_hash,omitempty" gorm:"type:varchar(64)"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// TableName overrides the table name
func (SessionEvent) TableName() string {
	return "session_events"
}

// KindCount is one row of a per-kind aggregate.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}
