package model

import (
	"time"
)

type PlaybackStatus string

const (
	PlaybackPending   PlaybackStatus = "pending"
	PlaybackLoading   PlaybackStatus = "loading"
	PlaybackPlaying   PlaybackStatus = "playing"
	PlaybackPaused    PlaybackStatus = "paused"
	PlaybackCompleted PlaybackStatus = "completed"
	PlaybackFailed    PlaybackStatus = "failed"
)

// PlaybackItem is one entry in the video queue. Status transitions happen
// only inside the playback orchestrator.
type PlaybackItem struct {
	ID          string         `json:"id"`
	TokenID     string         `json:"tokenId"`
	VideoPath   string         `json:"videoPath"`
	RequestedBy string         `json:"requestedBy"`
	Duration    *float64       `json:"duration,omitempty"` // seconds, nil until discovered
	Status      PlaybackStatus `json:"status"`
	RequestedAt time.Time      `json:"requestedAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}
