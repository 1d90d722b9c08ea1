package model

import (
	"time"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// Session is the authoritative record of one show run. At most one session
// is current at any time; scans and GM commands outside an active,
// non-paused session are rejected or queued.
type Session struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    SessionStatus `db:"status" json:"status"`
	StartTime time.Time     `db:"start_time" json:"startTime"`
	EndTime   *time.Time    `db:"end_time" json:"endTime,omitempty"`
	TeamIDs   []string      `db:"-" json:"teamIds"`
	Devices   []DeviceRef   `db:"-" json:"connectedDevices"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// IsAcceptingScans reports whether the session can take new scans.
func (s *Session) IsAcceptingScans() bool {
	return s != nil && s.Status == SessionActive
}

type Sessions []Session

// DeviceRef is the session-embedded view of a connected device.
type DeviceRef struct {
	ID   string     `json:"id"`
	Type DeviceType `json:"type"`
	Name string     `json:"name"`
}

type SessionRepository interface {
	Exists(id string) (bool, error)
	Get(id string) (*Session, error)
	GetCurrent() (*Session, error)
	GetAll() (Sessions, error)
	Save(session *Session) (string, error)
	Update(id string, session *Session, cols ...string) error
}

// TeamScore is the running score of one team within the current session.
type TeamScore struct {
	TeamID          string    `json:"teamId"`
	Score           int       `json:"score"`
	TokensScanned   int       `json:"tokensScanned"`
	CompletedGroups []string  `json:"completedGroups"`
	LastUpdated     time.Time `json:"lastUpdated"`
}
