package realtime

import (
	"encoding/json"
	"testing"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/player"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/video"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

func newSyncFixture(t *testing.T) (*Synchronizer, *Hub, *registry.Registry) {
	t.Helper()
	bus := events.NewBus()
	reg := registry.New(conf.SessionConfig{}, bus, nil, nil)
	playerClient := player.NewClient("", 0)
	vid := video.NewOrchestrator(conf.VideoConfig{}, playerClient, bus)
	hub := NewHub()
	return NewSynchronizer(hub, reg, vid, playerClient), hub, reg
}

// TestBuildSnapshotCompleteHistory verifies the snapshot carries the
// full transaction log and the device's own scanned set.
func TestBuildSnapshotCompleteHistory(t *testing.T) {
	s, _, reg := newSyncFixture(t)
	reg.CreateSession("show", []string{"team-a"})
	reg.UpdateDevice(model.Device{ID: "d1", Type: model.DevicePlayer})

	for _, tokenID := range []string{"t1", "t2", "t3"} {
		reg.RecordScan("d1", tokenID)
		reg.AddTransaction(model.Transaction{ID: "tx-" + tokenID, TeamID: "team-a", DeviceID: "d1", TokenID: tokenID, Points: 1})
	}

	snap := s.BuildSnapshot("d1", true)

	if snap.Session == nil || snap.Session.Name != "show" {
		t.Fatalf("snapshot missing session: %+v", snap.Session)
	}
	if len(snap.Transactions) != 3 {
		t.Errorf("expected full history of 3 transactions, got %d", len(snap.Transactions))
	}
	if len(snap.ScannedTokens) != 3 {
		t.Errorf("expected 3 scanned tokens, got %v", snap.ScannedTokens)
	}
	if !snap.Reconnection {
		t.Error("reconnection flag lost")
	}
	if snap.SystemStatus.Orchestrator != "online" || snap.SystemStatus.Player != "disconnected" {
		t.Errorf("unexpected system status: %+v", snap.SystemStatus)
	}
	if snap.VideoStatus.Status != "idle" {
		t.Errorf("expected idle video status, got %+v", snap.VideoStatus)
	}
}

// TestBuildSnapshotWithoutSession verifies a fresh system yields a
// well-formed empty snapshot.
func TestBuildSnapshotWithoutSession(t *testing.T) {
	s, _, _ := newSyncFixture(t)

	snap := s.BuildSnapshot("d1", false)
	if snap.Session != nil {
		t.Error("expected nil session")
	}
	if snap.Reconnection {
		t.Error("fresh connection flagged as reconnection")
	}
}

// TestOnIdentifiedJoinsRoomsAndSendsSnapshot verifies the join sequence
// and the two-message identification handshake: the ack confirming the
// identity, then exactly one full snapshot.
func TestOnIdentifiedJoinsRoomsAndSendsSnapshot(t *testing.T) {
	s, hub, reg := newSyncFixture(t)
	session, err := reg.CreateSession("show", []string{"team-a"})
	if err != nil {
		t.Fatal(err)
	}

	c := hub.NewClient(nil, "gm-1", model.DeviceGM, nil, nil, nil)
	s.OnIdentified(c, true)

	for _, room := range []string{RoomDevice("gm-1"), RoomType(model.DeviceGM), RoomSession(session.ID), RoomTeam("team-a")} {
		if hub.RoomSize(room) != 1 {
			t.Errorf("client not joined to %q", room)
		}
	}

	next := func() Envelope {
		t.Helper()
		select {
		case data := <-c.sendCh:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatal(err)
			}
			return env
		default:
			t.Fatal("expected another message on identification")
			return Envelope{}
		}
	}

	env := next()
	if env.Event != (IdentifyAck{}).EventName() {
		t.Fatalf("expected identification ack first, got %q", env.Event)
	}
	var ack IdentifyAck
	raw, _ := json.Marshal(env.Data)
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.DeviceID != "gm-1" || !ack.Reconnection {
		t.Errorf("unexpected ack payload: %+v", ack)
	}

	if env = next(); env.Event != model.EventSyncFull {
		t.Errorf("expected %q after the ack, got %q", model.EventSyncFull, env.Event)
	}

	select {
	case <-c.sendCh:
		t.Fatal("identification sent more than the ack and one snapshot")
	default:
	}
}
