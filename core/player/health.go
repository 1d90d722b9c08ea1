package player

import (
	"context"
	"time"

	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
)

// HealthConfig tunes the background connectivity probe. Backoff grows
// linearly: Delay * attempt, capped at MaxDelay, for at most MaxAttempts
// before the checker raises the terminal failure callback.
type HealthConfig struct {
	Interval    time.Duration
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:    5 * time.Second,
		Delay:       time.Second,
		MaxDelay:    15 * time.Second,
		MaxAttempts: 10,
	}
}

// HealthChecker keeps the client's cached connected flag current. While
// healthy it probes on a fixed interval; after a failure it retries with
// linear backoff. Exhausting the attempts raises OnFailed once and the
// checker goes back to the slow interval, so a later player restart is
// still picked up.
type HealthChecker struct {
	client   *Client
	cfg      HealthConfig
	onChange func(connected bool)
	onFailed func()
}

func NewHealthChecker(client *Client, cfg HealthConfig, onChange func(bool), onFailed func()) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg = DefaultHealthConfig()
	}
	return &HealthChecker{client: client, cfg: cfg, onChange: onChange, onFailed: onFailed}
}

// Run blocks until ctx is cancelled. Not started at all when no player is
// wired.
func (h *HealthChecker) Run(ctx context.Context) {
	if !h.client.Wired() {
		return
	}
	for {
		if !h.probe(ctx) {
			if !h.reconnect(ctx) {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.Interval):
		}
	}
}

// probe performs one status check and updates the cached flag.
func (h *HealthChecker) probe(ctx context.Context) bool {
	_, err := h.client.fetchStatus(ctx)
	ok := err == nil
	if ok != h.client.Connected() {
		h.client.setConnected(ok)
		if ok {
			log.Info("player: connection established")
		} else {
			log.Warn("player: connection lost", "error", err.Error())
		}
		if h.onChange != nil {
			h.onChange(ok)
		}
	}
	return ok
}

// reconnect retries the probe with linearly increasing backoff. Returns
// false only when ctx is cancelled.
func (h *HealthChecker) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		delay := h.cfg.Delay * time.Duration(attempt)
		if delay > h.cfg.MaxDelay {
			delay = h.cfg.MaxDelay
		}
		log.Debug("player: scheduling reconnect attempt",
			"attempt", attempt, "maxAttempts", h.cfg.MaxAttempts, "delay", delay.String())
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if h.probe(ctx) {
			return true
		}
	}
	log.Error("player: connection failed after max reconnect attempts",
		"attempts", h.cfg.MaxAttempts)
	if h.onFailed != nil {
		h.onFailed()
	}
	// Fall back to the regular interval; the player may come back later.
	select {
	case <-ctx.Done():
		return false
	case <-time.After(h.cfg.Interval):
		return true
	}
}
