package model

// Token is a catalog entry for a physical memory token. The catalog is
// loaded by an external collaborator; the core only reads it to enrich
// broadcast payloads and to decide whether a scan cues a video.
type Token struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	MemoryType  string  `json:"memoryType,omitempty"`
	ValueRating int     `json:"valueRating,omitempty"`
	GroupID     string  `json:"groupId,omitempty"`
	HasVideo    bool    `json:"hasVideo"`
	VideoPath   string  `json:"videoPath,omitempty"`
	Duration    float64 `json:"duration,omitempty"` // seconds, used when playback is simulated
}

type TokenCatalog interface {
	Get(id string) (*Token, bool)
	GroupSize(groupID string) int
}
