package model

import (
	"time"
)

// ScanRequest is a token scan submitted by a device.
type ScanRequest struct {
	TokenID   string     `json:"tokenId"`
	TeamID    string     `json:"teamId,omitempty"`
	DeviceID  string     `json:"deviceId"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (r *ScanRequest) Validate() error {
	if r.TokenID == "" || r.DeviceID == "" {
		return ErrValidation
	}
	return nil
}

const (
	ScanAccepted = "accepted"
	ScanQueued   = "queued"
	ScanRejected = "rejected"
)

// ScanResponse reports the outcome of one scan submission.
type ScanResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	VideoQueued   bool   `json:"videoQueued,omitempty"`
	Message       string `json:"message,omitempty"`
}

// QueuedScan is a scan buffered while no session is active or
// connectivity is down. It is only ever replayed as part of a batch.
type QueuedScan struct {
	ScanRequest
	TransactionID string    `json:"transactionId"`
	QueuedAt      time.Time `json:"queuedAt"`
	RetryCount    int       `json:"retryCount"`
}

// BatchRequest replays a client-identified group of scans.
type BatchRequest struct {
	BatchID      string        `json:"batchId"`
	Transactions []ScanRequest `json:"transactions"`
}

func (r *BatchRequest) Validate() error {
	if r.BatchID == "" {
		return ErrValidation
	}
	return nil
}
