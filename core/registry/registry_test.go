package registry

import (
	"errors"
	"testing"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

func newTestRegistry(t *testing.T) (*Registry, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	return New(conf.SessionConfig{MaxGMStations: 2}, bus, nil, nil), bus
}

// TestCreateSessionSingleCurrent verifies the single-session invariant:
// a second create is rejected until the first one ends.
func TestCreateSessionSingleCurrent(t *testing.T) {
	r, _ := newTestRegistry(t)

	s, err := r.CreateSession("night one", []string{"team-a", "team-b"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.Status != model.SessionActive {
		t.Errorf("expected active session, got %s", s.Status)
	}
	if len(s.TeamIDs) != 2 {
		t.Errorf("expected 2 teams, got %d", len(s.TeamIDs))
	}

	if _, err := r.CreateSession("night two", nil); !errors.Is(err, model.ErrSessionConflict) {
		t.Fatalf("expected ErrSessionConflict, got %v", err)
	}

	if err := r.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if _, err := r.CreateSession("night two", nil); err != nil {
		t.Fatalf("create after end failed: %v", err)
	}
}

// TestCreateSessionRequiresName verifies validation.
func TestCreateSessionRequiresName(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.CreateSession("", nil); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// TestCreateSessionAttachesConnectedDevices verifies devices connected
// before the session starts appear on its device list, in stable order.
func TestCreateSessionAttachesConnectedDevices(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.UpdateDevice(model.Device{ID: "gm-2", Type: model.DeviceGM})
	r.UpdateDevice(model.Device{ID: "gm-1", Type: model.DeviceGM})
	r.MarkDisconnected("gm-2")

	s, err := r.CreateSession("show", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if len(s.Devices) != 1 || s.Devices[0].ID != "gm-1" {
		t.Errorf("expected only the connected device attached, got %+v", s.Devices)
	}
}

// TestUpdateDeviceFlags verifies first contact, heartbeat refresh, and
// reconnection produce the right flags and broadcasts.
func TestUpdateDeviceFlags(t *testing.T) {
	r, bus := newTestRegistry(t)

	var connects []model.DeviceEvent
	_ = bus.DeviceConnected.Subscribe("test", func(ev model.DeviceEvent) { connects = append(connects, ev) })

	_, isNew, isReconn := r.UpdateDevice(model.Device{ID: "d1", Type: model.DeviceGM})
	if !isNew || isReconn {
		t.Fatalf("first contact: isNew=%v isReconnection=%v", isNew, isReconn)
	}

	_, isNew, isReconn = r.UpdateDevice(model.Device{ID: "d1", Type: model.DeviceGM})
	if isNew || isReconn {
		t.Fatalf("refresh should be silent: isNew=%v isReconnection=%v", isNew, isReconn)
	}

	r.MarkDisconnected("d1")
	_, isNew, isReconn = r.UpdateDevice(model.Device{ID: "d1", Type: model.DeviceGM})
	if isNew || !isReconn {
		t.Fatalf("return after disconnect: isNew=%v isReconnection=%v", isNew, isReconn)
	}

	if len(connects) != 2 {
		t.Errorf("expected 2 device:connected events (new + reconnection), got %d", len(connects))
	}
	if len(connects) == 2 && !connects[1].Reconnection {
		t.Errorf("second event should carry the reconnection flag")
	}
}

// TestGMStationCap verifies the connected-GM cap counts only connected
// gm-type devices.
func TestGMStationCap(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.UpdateDevice(model.Device{ID: "gm-1", Type: model.DeviceGM})
	r.UpdateDevice(model.Device{ID: "player-1", Type: model.DevicePlayer})
	if !r.CanAcceptGMStation() {
		t.Fatal("cap reached too early")
	}
	r.UpdateDevice(model.Device{ID: "gm-2", Type: model.DeviceGM})
	if r.CanAcceptGMStation() {
		t.Fatal("cap not enforced at 2 connected gm stations")
	}
	r.MarkDisconnected("gm-1")
	if !r.CanAcceptGMStation() {
		t.Fatal("disconnected gm station still counted against the cap")
	}
}

// TestScanDeduplication verifies the per-device scanned set.
func TestScanDeduplication(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.UpdateDevice(model.Device{ID: "d1", Type: model.DevicePlayer})

	if !r.RecordScan("d1", "tok-1") {
		t.Fatal("first scan rejected")
	}
	if r.RecordScan("d1", "tok-1") {
		t.Fatal("duplicate scan accepted")
	}
	if !r.HasScanned("d1", "tok-1") {
		t.Error("HasScanned lost the record")
	}
	if r.HasScanned("d2", "tok-1") {
		t.Error("scanned set leaked across devices")
	}
	if got := r.ScannedTokens("d1"); len(got) != 1 || got[0] != "tok-1" {
		t.Errorf("expected [tok-1], got %v", got)
	}
}

// TestTransactionScoring verifies add and delete keep scores symmetric.
func TestTransactionScoring(t *testing.T) {
	r, bus := newTestRegistry(t)
	if _, err := r.CreateSession("show", []string{"team-a"}); err != nil {
		t.Fatal(err)
	}

	var scoreEvents []model.ScoreUpdated
	_ = bus.ScoreUpdated.Subscribe("test", func(ev model.ScoreUpdated) { scoreEvents = append(scoreEvents, ev) })

	r.UpdateDevice(model.Device{ID: "d1", Type: model.DevicePlayer})
	r.RecordScan("d1", "tok-1")
	r.AddTransaction(model.Transaction{ID: "tx-1", TeamID: "team-a", DeviceID: "d1", TokenID: "tok-1", Points: 3})

	scores := r.Scores()
	if len(scores) != 1 || scores[0].Score != 3 || scores[0].TokensScanned != 1 {
		t.Fatalf("unexpected scores after add: %+v", scores)
	}

	if err := r.DeleteTransaction("tx-1"); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	scores = r.Scores()
	if scores[0].Score != 0 || scores[0].TokensScanned != 0 {
		t.Errorf("score not reversed on delete: %+v", scores[0])
	}
	if r.HasScanned("d1", "tok-1") {
		t.Error("scanned set kept the token after its transaction was deleted")
	}
	if len(r.Transactions()) != 0 {
		t.Error("transaction log kept the deleted entry")
	}
	if len(scoreEvents) != 2 {
		t.Errorf("expected 2 score:updated events, got %d", len(scoreEvents))
	}

	if err := r.DeleteTransaction("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestAdjustScoreRequiresSession verifies manual corrections need a
// current session.
func TestAdjustScoreRequiresSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.AdjustScore("team-a", 5); !errors.Is(err, model.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	r.CreateSession("show", []string{"team-a"})
	if err := r.AdjustScore("team-a", 5); err != nil {
		t.Fatalf("AdjustScore failed: %v", err)
	}
	if got := r.Scores()[0].Score; got != 5 {
		t.Errorf("expected score 5, got %d", got)
	}
}

// TestGroupCompletion verifies a group completes exactly once, when the
// last member token arrives for that team.
func TestGroupCompletion(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.CreateSession("show", []string{"team-a", "team-b"})

	if r.RecordGroupToken("team-a", "grp", 2) {
		t.Fatal("group completed after one of two tokens")
	}
	if r.RecordGroupToken("team-b", "grp", 2) {
		t.Fatal("group progress leaked across teams")
	}
	if !r.RecordGroupToken("team-a", "grp", 2) {
		t.Fatal("group did not complete on the final token")
	}
	if r.RecordGroupToken("team-a", "grp", 2) {
		t.Fatal("group completed twice")
	}
}

// TestResetScores verifies scores zero out but the session stays.
func TestResetScores(t *testing.T) {
	r, bus := newTestRegistry(t)
	r.CreateSession("show", []string{"team-a"})
	r.AdjustScore("team-a", 7)

	resetSeen := false
	_ = bus.ScoresReset.Subscribe("test", func(model.ScoresReset) { resetSeen = true })

	r.ResetScores()

	if got := r.Scores()[0].Score; got != 0 {
		t.Errorf("expected score 0 after reset, got %d", got)
	}
	if r.CurrentSession() == nil {
		t.Error("score reset must not end the session")
	}
	if !resetSeen {
		t.Error("scores:reset event not published")
	}
}

// TestReset verifies the full wipe: session gone, logs gone, scanned
// sets gone, device records kept.
func TestReset(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.CreateSession("show", []string{"team-a"})
	r.UpdateDevice(model.Device{ID: "d1", Type: model.DevicePlayer})
	r.RecordScan("d1", "tok-1")
	r.AddTransaction(model.Transaction{ID: "tx-1", TeamID: "team-a", DeviceID: "d1", TokenID: "tok-1", Points: 3})

	r.Reset()

	if r.CurrentSession() != nil {
		t.Error("session survived reset")
	}
	if len(r.Transactions()) != 0 {
		t.Error("transaction log survived reset")
	}
	if r.HasScanned("d1", "tok-1") {
		t.Error("scanned set survived reset")
	}
	if len(r.Devices()) != 1 {
		t.Error("device records should survive reset")
	}
}
