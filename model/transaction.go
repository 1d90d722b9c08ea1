package model

import (
	"time"
)

// Transaction records one accepted token scan within a session.
type Transaction struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"sessionId"`
	TokenID    string    `db:"token_id" json:"tokenId"`
	TeamID     string    `db:"team_id" json:"teamId,omitempty"`
	DeviceID   string    `db:"device_id" json:"deviceId"`
	Points     int       `db:"points" json:"points"`
	MemoryType string    `db:"memory_type" json:"memoryType,omitempty"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

type Transactions []Transaction

type TransactionRepository interface {
	Save(tx *Transaction) error
	Delete(id string) error
	GetBySession(sessionID string) (Transactions, error)
	DeleteBySession(sessionID string) error
}
