package realtime

import (
	"sync"

	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// subscriberID keys every coordinator subscription on the bus. The bus
// rejects duplicate ids, which backs the idempotency guarantee.
const subscriberID = "broadcast-coordinator"

// Broadcaster is the broadcast coordinator: it subscribes once to every
// domain event topic and fans the wrapped envelope to the right audience.
// Routing is fixed per event, not configurable:
//
//   - session lifecycle and device presence: all devices
//   - scores-reset, video status/progress/queue, offline summary: gm room
//   - transactions, scores, group completions: current session room
//     (global fallback with a warning when no session exists)
//   - batch acks: the originating device's room
type Broadcaster struct {
	hub *Hub
	bus *events.Bus
	reg *registry.Registry

	mu        sync.Mutex
	active    bool
	teardowns []func()
}

func NewBroadcaster(hub *Hub, bus *events.Bus, reg *registry.Registry) *Broadcaster {
	return &Broadcaster{hub: hub, bus: bus, reg: reg}
}

// listen registers one topic subscription and records its teardown.
func listen[T any](b *Broadcaster, topic *events.Topic[T], fn func(T)) {
	if err := topic.Subscribe(subscriberID, fn); err != nil {
		// Only possible on a duplicate id, which SetupListeners' guard
		// already excludes.
		log.Error("broadcast: subscribing listener", err)
		return
	}
	b.teardowns = append(b.teardowns, func() {
		if err := topic.Unsubscribe(subscriberID); err != nil {
			log.Error("broadcast: removing listener", err)
		}
	})
}

// SetupListeners wires every topic exactly once. Calling it again while
// active is a no-op, so overlapping initialization paths cannot
// double-register.
func (b *Broadcaster) SetupListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		log.Warn("broadcast: setup called while already active, ignoring")
		return
	}
	b.active = true

	listen(b, b.bus.SessionUpdated, func(e model.SessionUpdate) { b.hub.Broadcast(e) })
	listen(b, b.bus.SessionOvertime, func(e model.SessionOvertime) { b.hub.Broadcast(e) })
	listen(b, b.bus.DeviceConnected, func(e model.DeviceEvent) { b.hub.Broadcast(e) })
	listen(b, b.bus.DeviceDisconnected, func(e model.DeviceEvent) { b.hub.Broadcast(e) })

	listen(b, b.bus.TransactionNew, func(e model.TransactionNew) { b.toSession(e.Transaction.SessionID, e) })
	listen(b, b.bus.TransactionDeleted, func(e model.TransactionDeleted) { b.toSession(e.SessionID, e) })
	listen(b, b.bus.ScoreUpdated, func(e model.ScoreUpdated) { b.toSession(e.SessionID, e) })
	listen(b, b.bus.GroupCompleted, func(e model.GroupCompleted) { b.toSession("", e) })

	listen(b, b.bus.ScoresReset, func(e model.ScoresReset) { b.toGM(e) })
	listen(b, b.bus.VideoStatus, func(e model.VideoStatus) { b.toGM(e) })
	listen(b, b.bus.VideoProgress, func(e model.VideoProgress) { b.toGM(e) })
	listen(b, b.bus.VideoQueueUpdate, func(e model.VideoQueueUpdate) { b.toGM(e) })
	listen(b, b.bus.OfflineProcessed, func(e model.OfflineQueueProcessed) { b.toGM(e) })
	listen(b, b.bus.SystemError, func(e model.ErrorEvent) { b.toGM(e) })

	listen(b, b.bus.BatchAck, func(e model.BatchAck) {
		b.hub.EmitToRoom(RoomDevice(e.DeviceID), e)
	})
}

// CleanupListeners removes every recorded registration and resets the
// guard, so the coordinator can be re-initialized without leaking
// duplicate subscriptions.
func (b *Broadcaster) CleanupListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, teardown := range b.teardowns {
		teardown()
	}
	b.teardowns = nil
	b.active = false
}

func (b *Broadcaster) toGM(payload model.EventPayload) {
	b.hub.EmitToRoom(RoomType(model.DeviceGM), payload)
}

// toSession routes to the current session's room. With no session the
// event is over-broadcast globally rather than dropped; that condition is
// an anomaly worth a warning, not a designed path.
func (b *Broadcaster) toSession(sessionID string, payload model.EventPayload) {
	if sessionID == "" {
		if current := b.reg.CurrentSession(); current != nil {
			sessionID = current.ID
		}
	}
	if sessionID == "" {
		log.Warn("broadcast: no current session for session-scoped event, broadcasting globally",
			"event", payload.EventName())
		b.hub.Broadcast(payload)
		return
	}
	b.hub.EmitToRoom(RoomSession(sessionID), payload)
}
