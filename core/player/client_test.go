package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// commandRecorder captures the player control traffic.
type commandRecorder struct {
	mu       sync.Mutex
	commands []string
	status   Status
	fail     bool
}

func (cr *commandRecorder) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		cr.mu.Lock()
		fail, st := cr.fail, cr.status
		cr.mu.Unlock()
		if fail {
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		cr.mu.Lock()
		cr.commands = append(cr.commands, r.URL.Query().Get("name"))
		cr.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (cr *commandRecorder) recorded() []string {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return append([]string(nil), cr.commands...)
}

// TestUnwiredClientDegrades verifies a client without a base URL never
// errors and reports the caller's expected state.
func TestUnwiredClientDegrades(t *testing.T) {
	c := NewClient("", time.Second)
	if c.Wired() {
		t.Fatal("empty base URL reported as wired")
	}

	res := c.Play(context.Background(), "/v.mp4")
	if !res.Degraded || res.State != "playing" {
		t.Errorf("unexpected degraded result: %+v", res)
	}
	st, err := c.PollStatus(context.Background())
	if err != nil {
		t.Fatalf("PollStatus errored on unwired client: %v", err)
	}
	if st.Connected {
		t.Error("unwired client reported connected")
	}
}

// TestPlayClearsPlaylistFirst verifies every play is preceded by a
// playlist clear and loop-off, enforcing single-item playback.
func TestPlayClearsPlaylistFirst(t *testing.T) {
	rec := &commandRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.setConnected(true)

	res := c.Play(context.Background(), "/v.mp4")
	if res.Degraded {
		t.Fatalf("play degraded against a live server: %+v", res)
	}

	got := rec.recorded()
	want := []string{"clear", "loop", "play"}
	if len(got) != len(want) {
		t.Fatalf("expected commands %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected commands %v, got %v", want, got)
		}
	}
}

// TestCommandsDegradeWhileDisconnected verifies the cached flag gates
// all outbound traffic.
func TestCommandsDegradeWhileDisconnected(t *testing.T) {
	rec := &commandRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	// Health checker has not marked it connected yet.

	if res := c.Pause(context.Background()); !res.Degraded {
		t.Errorf("pause did not degrade: %+v", res)
	}
	if cmds := rec.recorded(); len(cmds) != 0 {
		t.Errorf("commands sent while believed disconnected: %v", cmds)
	}
}

// TestGetStatusNeverErrors verifies the snapshot variant maps failures
// to a disconnected status.
func TestGetStatusNeverErrors(t *testing.T) {
	rec := &commandRecorder{status: Status{State: "playing", Position: 10, Length: 60}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.setConnected(true)

	st := c.GetStatus(context.Background())
	if !st.Connected || st.State != "playing" || st.Length != 60 {
		t.Fatalf("unexpected status: %+v", st)
	}

	rec.mu.Lock()
	rec.fail = true
	rec.mu.Unlock()

	st = c.GetStatus(context.Background())
	if st.Connected {
		t.Error("failed poll still reported connected")
	}
	if st.State != "stopped" {
		t.Errorf("expected stopped on failure, got %q", st.State)
	}
}

// TestPollStatusSurfacesTransportError verifies the monitoring variant
// errors when a believed-healthy player fails, instead of degrading.
func TestPollStatusSurfacesTransportError(t *testing.T) {
	rec := &commandRecorder{fail: true}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.setConnected(true)

	if _, err := c.PollStatus(context.Background()); err == nil {
		t.Fatal("expected an error from a failing status endpoint")
	}
}
