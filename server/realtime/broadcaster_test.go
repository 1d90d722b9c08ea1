package realtime

import (
	"testing"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

type coordinatorFixture struct {
	hub *Hub
	bus *events.Bus
	reg *registry.Registry
	b   *Broadcaster

	gm      *Client
	scanner *Client
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		hub: NewHub(),
		bus: events.NewBus(),
	}
	f.reg = registry.New(conf.SessionConfig{}, f.bus, nil, nil)
	f.b = NewBroadcaster(f.hub, f.bus, f.reg)
	f.b.SetupListeners()
	t.Cleanup(f.b.CleanupListeners)

	f.gm = f.hub.NewClient(nil, "gm-1", model.DeviceGM, nil, nil, nil)
	f.hub.JoinRoom(f.gm, RoomType(model.DeviceGM))
	f.hub.JoinRoom(f.gm, RoomDevice("gm-1"))
	f.scanner = f.hub.NewClient(nil, "sc-1", model.DevicePlayer, nil, nil, nil)
	f.hub.JoinRoom(f.scanner, RoomDevice("sc-1"))
	return f
}

func (f *coordinatorFixture) joinSession(t *testing.T, sessionID string, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		f.hub.JoinRoom(c, RoomSession(sessionID))
	}
}

// TestSetupListenersIdempotent verifies a second setup registers
// nothing: each event still reaches a client exactly once.
func TestSetupListenersIdempotent(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.b.SetupListeners() // must be a no-op

	f.bus.SessionUpdated.Publish(model.SessionUpdate{})
	if got := len(f.gm.sendCh); got != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", got)
	}
	if f.bus.SessionUpdated.SubscriberCount() != 1 {
		t.Errorf("duplicate subscription registered")
	}
}

// TestCleanupAllowsReinitialization verifies teardown and re-setup works
// without duplicating listeners.
func TestCleanupAllowsReinitialization(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.b.CleanupListeners()
	if f.bus.VideoStatus.SubscriberCount() != 0 {
		t.Fatal("cleanup left subscriptions behind")
	}

	f.b.SetupListeners()
	f.bus.VideoStatus.Publish(model.VideoStatus{Status: "idle"})
	if got := len(f.gm.sendCh); got != 1 {
		t.Errorf("expected 1 delivery after re-setup, got %d", got)
	}
}

// TestLifecycleEventsReachEveryone verifies session and device presence
// events are global.
func TestLifecycleEventsReachEveryone(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.bus.SessionUpdated.Publish(model.SessionUpdate{})
	f.bus.DeviceConnected.Publish(model.DeviceEvent{DeviceID: "d9"})

	for _, c := range []*Client{f.gm, f.scanner} {
		if got := len(c.sendCh); got != 2 {
			t.Errorf("client %s expected 2 deliveries, got %d", c.DeviceID, got)
		}
	}
}

// TestOperationalEventsAreGMOnly verifies video and offline telemetry
// stays off the player displays.
func TestOperationalEventsAreGMOnly(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.bus.VideoStatus.Publish(model.VideoStatus{Status: "playing"})
	f.bus.VideoProgress.Publish(model.VideoProgress{TokenID: "tok"})
	f.bus.VideoQueueUpdate.Publish(model.VideoQueueUpdate{})
	f.bus.OfflineProcessed.Publish(model.OfflineQueueProcessed{})
	f.bus.ScoresReset.Publish(model.ScoresReset{})
	f.bus.SystemError.Publish(model.ErrorEvent{Message: "boom"})

	if got := len(f.gm.sendCh); got != 6 {
		t.Errorf("gm expected 6 deliveries, got %d", got)
	}
	if got := len(f.scanner.sendCh); got != 0 {
		t.Errorf("scanner received %d gm-scoped events", got)
	}
}

// TestSessionScopedRouting verifies transaction and score events reach
// session-room members only.
func TestSessionScopedRouting(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.joinSession(t, "s1", f.gm)

	f.bus.TransactionNew.Publish(model.TransactionNew{
		Transaction: model.Transaction{SessionID: "s1"},
	})
	f.bus.ScoreUpdated.Publish(model.ScoreUpdated{SessionID: "s1"})

	if got := len(f.gm.sendCh); got != 2 {
		t.Errorf("session member expected 2 deliveries, got %d", got)
	}
	if got := len(f.scanner.sendCh); got != 0 {
		t.Errorf("non-member received %d session-scoped events", got)
	}
}

// TestSessionRoutingFallsBackToGlobal verifies an event with no session
// id and no current session is over-broadcast rather than dropped.
func TestSessionRoutingFallsBackToGlobal(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.bus.GroupCompleted.Publish(model.GroupCompleted{TeamID: "team-a", GroupID: "grp"})

	for _, c := range []*Client{f.gm, f.scanner} {
		if got := len(c.sendCh); got != 1 {
			t.Errorf("client %s expected the fallback broadcast, got %d", c.DeviceID, got)
		}
	}
}

// TestSessionRoutingUsesCurrentSession verifies an empty session id
// resolves against the registry's current session.
func TestSessionRoutingUsesCurrentSession(t *testing.T) {
	f := newCoordinatorFixture(t)
	session, err := f.reg.CreateSession("show", []string{"team-a"})
	if err != nil {
		t.Fatal(err)
	}
	f.joinSession(t, session.ID, f.gm)
	// Drain the session:update broadcast from CreateSession.
	for len(f.gm.sendCh) > 0 {
		<-f.gm.sendCh
	}
	for len(f.scanner.sendCh) > 0 {
		<-f.scanner.sendCh
	}

	f.bus.GroupCompleted.Publish(model.GroupCompleted{TeamID: "team-a", GroupID: "grp"})

	if got := len(f.gm.sendCh); got != 1 {
		t.Errorf("session member expected 1 delivery, got %d", got)
	}
	if got := len(f.scanner.sendCh); got != 0 {
		t.Errorf("non-member received %d events", got)
	}
}

// TestBatchAckTargetsOriginDevice verifies acks go only to the device
// room that submitted the batch.
func TestBatchAckTargetsOriginDevice(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.bus.BatchAck.Publish(model.BatchAck{BatchID: "b", DeviceID: "sc-1"})

	if got := len(f.scanner.sendCh); got != 1 {
		t.Errorf("origin device expected the ack, got %d", got)
	}
	if got := len(f.gm.sendCh); got != 0 {
		t.Errorf("ack leaked to %d other clients", got)
	}
}
