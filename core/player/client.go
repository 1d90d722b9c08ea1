// Package player is a thin client for the external media player process.
// The player is treated as unreliable: every call may fail or time out,
// and failures degrade to a simulated response instead of surfacing to
// the caller.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
)

// Status is the player's poll-based state report.
type Status struct {
	Connected bool    `json:"connected"`
	State     string  `json:"state"` // "playing", "paused", "stopped"
	Position  float64 `json:"position"`
	Length    float64 `json:"length"`
	Path      string  `json:"path,omitempty"`
}

// Result is returned by imperative commands. Degraded results synthesize
// the shape the caller expects when the player is unreachable.
type Result struct {
	Degraded bool   `json:"degraded,omitempty"`
	State    string `json:"state"`
}

// Client drives the player over its HTTP control interface. A zero
// BaseURL means no player is wired and every call degrades.
type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.RWMutex
	connected bool
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Wired reports whether a player URL is configured at all. When false the
// orchestrator runs in simulated-playback mode.
func (c *Client) Wired() bool { return c.baseURL != "" }

// Connected returns the cached connectivity flag maintained by the
// health checker.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Play starts path as the only item. The playlist is always cleared and
// loop disabled first, so a previously enqueued item can never leak into
// the new playback.
func (c *Client) Play(ctx context.Context, path string) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "playing"}
	}
	c.command(ctx, "clear", nil)
	c.command(ctx, "loop", url.Values{"enabled": {"false"}})
	if err := c.command(ctx, "play", url.Values{"path": {path}}); err != nil {
		return c.degrade("play", "playing", err)
	}
	return Result{State: "playing"}
}

func (c *Client) Pause(ctx context.Context) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "paused"}
	}
	if err := c.command(ctx, "pause", nil); err != nil {
		return c.degrade("pause", "paused", err)
	}
	return Result{State: "paused"}
}

func (c *Client) Resume(ctx context.Context) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "playing"}
	}
	if err := c.command(ctx, "resume", nil); err != nil {
		return c.degrade("resume", "playing", err)
	}
	return Result{State: "playing"}
}

func (c *Client) Stop(ctx context.Context) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "stopped"}
	}
	if err := c.command(ctx, "stop", nil); err != nil {
		return c.degrade("stop", "stopped", err)
	}
	return Result{State: "stopped"}
}

func (c *Client) Seek(ctx context.Context, position float64) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "playing"}
	}
	vals := url.Values{"position": {strconv.FormatFloat(position, 'f', -1, 64)}}
	if err := c.command(ctx, "seek", vals); err != nil {
		return c.degrade("seek", "playing", err)
	}
	return Result{State: "playing"}
}

func (c *Client) SetLoop(ctx context.Context, enabled bool) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "stopped"}
	}
	vals := url.Values{"enabled": {strconv.FormatBool(enabled)}}
	if err := c.command(ctx, "loop", vals); err != nil {
		return c.degrade("loop", "stopped", err)
	}
	return Result{State: "stopped"}
}

func (c *Client) ClearPlaylist(ctx context.Context) Result {
	if !c.ready() {
		return Result{Degraded: true, State: "stopped"}
	}
	if err := c.command(ctx, "clear", nil); err != nil {
		return c.degrade("clear", "stopped", err)
	}
	return Result{State: "stopped"}
}

// GetStatus polls the player. A degraded status reports Connected=false
// with a stopped state; callers never see an error.
func (c *Client) GetStatus(ctx context.Context) Status {
	if !c.ready() {
		return Status{Connected: false, State: "stopped"}
	}
	st, err := c.fetchStatus(ctx)
	if err != nil {
		log.Debug("player: status poll failed", "error", err.Error())
		return Status{Connected: false, State: "stopped"}
	}
	st.Connected = true
	return st
}

// PollStatus is the monitoring variant of GetStatus. While the cached
// flag says disconnected it returns a degraded status and no error; a
// transport failure on a supposedly healthy player is surfaced as an
// error so the monitor can fail the item instead of stalling.
func (c *Client) PollStatus(ctx context.Context) (Status, error) {
	if !c.ready() {
		return Status{Connected: false, State: "stopped"}, nil
	}
	st, err := c.fetchStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	st.Connected = true
	return st, nil
}

// ready reports whether calls should go out at all.
func (c *Client) ready() bool {
	return c.Wired() && c.Connected()
}

func (c *Client) degrade(cmd, state string, err error) Result {
	log.Warn("player: command failed, degrading", "command", cmd, "error", err.Error())
	return Result{Degraded: true, State: state}
}

// fetchStatus performs the raw status request, bypassing the cached flag.
// The health checker uses it as its probe.
func (c *Client) fetchStatus(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("player status: unexpected HTTP %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("player status: %w", err)
	}
	return st, nil
}

func (c *Client) command(ctx context.Context, name string, vals url.Values) error {
	if vals == nil {
		vals = url.Values{}
	}
	vals.Set("name", name)
	u := c.baseURL + "/command?" + vals.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("player command %q: unexpected HTTP %d", name, resp.StatusCode)
	}
	return nil
}
