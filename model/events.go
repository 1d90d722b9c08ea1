package model

import (
	"time"
)

// Canonical outbound event names. Every payload sent to a device is wrapped
// in an envelope carrying one of these.
const (
	EventSessionUpdate     = "session:update"
	EventSessionOvertime   = "session:overtime"
	EventDeviceConnected   = "device:connected"
	EventDeviceDisconnect  = "device:disconnected"
	EventTransactionNew    = "transaction:new"
	EventTransactionDelete = "transaction:deleted"
	EventScoreUpdated      = "score:updated"
	EventGroupCompleted    = "group:completed"
	EventScoresReset       = "scores:reset"
	EventVideoStatus       = "video:status"
	EventVideoProgress     = "video:progress"
	EventVideoQueueUpdate  = "video:queue:update"
	EventOfflineProcessed  = "offline:queue:processed"
	EventBatchAck          = "batch:ack"
	EventSyncFull          = "sync:full"
	EventError             = "error"
)

// EventPayload ties every outbound payload to its event name, so the
// envelope boundary cannot mix a payload with the wrong event.
type EventPayload interface {
	EventName() string
}

type SessionUpdate struct {
	Session *Session `json:"session"` // nil after session end / reset
}

func (SessionUpdate) EventName() string { return EventSessionUpdate }

type SessionOvertime struct {
	SessionID string    `json:"sessionId"`
	Since     time.Time `json:"since"`
}

func (SessionOvertime) EventName() string { return EventSessionOvertime }

type DeviceEvent struct {
	DeviceID     string     `json:"deviceId"`
	Type         DeviceType `json:"type"`
	Name         string     `json:"name,omitempty"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	Reconnection bool       `json:"reconnection,omitempty"`
	Disconnected bool       `json:"-"`
}

func (e DeviceEvent) EventName() string {
	if e.Disconnected {
		return EventDeviceDisconnect
	}
	return EventDeviceConnected
}

type TransactionNew struct {
	Transaction Transaction `json:"transaction"`
	MemoryType  string      `json:"memoryType,omitempty"`
	ValueRating int         `json:"valueRating,omitempty"`
}

func (TransactionNew) EventName() string { return EventTransactionNew }

type TransactionDeleted struct {
	TransactionID string `json:"transactionId"`
	SessionID     string `json:"sessionId"`
}

func (TransactionDeleted) EventName() string { return EventTransactionDelete }

type ScoreUpdated struct {
	TeamScore
	SessionID string `json:"sessionId"`
}

func (ScoreUpdated) EventName() string { return EventScoreUpdated }

type GroupCompleted struct {
	TeamID  string `json:"teamId"`
	GroupID string `json:"groupId"`
	Bonus   int    `json:"bonus,omitempty"`
}

func (GroupCompleted) EventName() string { return EventGroupCompleted }

type ScoresReset struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (ScoresReset) EventName() string { return EventScoresReset }

// VideoStatus mirrors the orchestrator state machine to GM stations:
// idle, loading, playing, paused, completed, error.
type VideoStatus struct {
	Status      string     `json:"status"`
	TokenID     string     `json:"tokenId,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	ExpectedEnd *time.Time `json:"expectedEnd,omitempty"`
	QueueLength int        `json:"queueLength"`
	Error       string     `json:"error,omitempty"`
}

func (VideoStatus) EventName() string { return EventVideoStatus }

type VideoProgress struct {
	TokenID  string  `json:"tokenId"`
	Position float64 `json:"position"` // 0..1
	Duration float64 `json:"duration,omitempty"`
}

func (VideoProgress) EventName() string { return EventVideoProgress }

type VideoQueueUpdate struct {
	Items []PlaybackItem `json:"items"`
}

func (VideoQueueUpdate) EventName() string { return EventVideoQueueUpdate }

type OfflineQueueProcessed struct {
	DeviceID       string `json:"deviceId,omitempty"`
	ProcessedCount int    `json:"processedCount"`
	FailedCount    int    `json:"failedCount"`
	TotalCount     int    `json:"totalCount"`
}

func (OfflineQueueProcessed) EventName() string { return EventOfflineProcessed }

type BatchItemResult struct {
	TokenID       string `json:"tokenId"`
	Status        string `json:"status"` // "processed" or "failed"
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

type BatchAck struct {
	BatchID        string            `json:"batchId"`
	DeviceID       string            `json:"deviceId"`
	ProcessedCount int               `json:"processedCount"`
	FailedCount    int               `json:"failedCount"`
	TotalCount     int               `json:"totalCount"`
	Results        []BatchItemResult `json:"results"`
}

func (BatchAck) EventName() string { return EventBatchAck }

// SystemStatus reports orchestrator and external player connectivity.
type SystemStatus struct {
	Orchestrator string `json:"orchestrator"` // "online"
	Player       string `json:"videoPlayer"`  // "connected" or "disconnected"
}

// SyncFull is the one-shot snapshot sent on every (re)connection.
type SyncFull struct {
	Session       *Session     `json:"session"` // nil when none
	Scores        []TeamScore  `json:"scores"`
	Transactions  Transactions `json:"transactions"` // complete history, not a window
	VideoStatus   VideoStatus  `json:"videoStatus"`
	Devices       []Device     `json:"devices"`
	SystemStatus  SystemStatus `json:"systemStatus"`
	ScannedTokens []string     `json:"scannedTokens"` // this device's own set
	Reconnection  bool         `json:"isReconnection"`
}

func (SyncFull) EventName() string { return EventSyncFull }

type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ErrorEvent) EventName() string { return EventError }
