package events

import (
	"errors"
	"testing"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// TestSubscribePublish verifies a handler observes published values.
func TestSubscribePublish(t *testing.T) {
	topic := NewTopic[int]()

	var got []int
	if err := topic.Subscribe("collector", func(v int) { got = append(got, v) }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	topic.Publish(1)
	topic.Publish(2)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
	if topic.Published() != 2 {
		t.Errorf("expected 2 published, got %d", topic.Published())
	}
}

// TestDuplicateSubscriberRejected verifies the same id cannot register
// twice, which is what makes listener setup idempotent.
func TestDuplicateSubscriberRejected(t *testing.T) {
	topic := NewTopic[string]()

	if err := topic.Subscribe("one", func(string) {}); err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	err := topic.Subscribe("one", func(string) {})
	if !errors.Is(err, ErrSubscriberExists) {
		t.Fatalf("expected ErrSubscriberExists, got %v", err)
	}
	if topic.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", topic.SubscriberCount())
	}
}

// TestUnsubscribe verifies a removed handler no longer fires and the id
// becomes reusable.
func TestUnsubscribe(t *testing.T) {
	topic := NewTopic[int]()

	fired := 0
	_ = topic.Subscribe("x", func(int) { fired++ })
	if err := topic.Unsubscribe("x"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	topic.Publish(7)
	if fired != 0 {
		t.Errorf("handler fired after Unsubscribe")
	}

	if err := topic.Unsubscribe("x"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound, got %v", err)
	}
	if err := topic.Subscribe("x", func(int) {}); err != nil {
		t.Fatalf("re-Subscribe after Unsubscribe failed: %v", err)
	}
}

// TestBusTopicsIndependent verifies publishing one topic does not leak
// into another.
func TestBusTopicsIndependent(t *testing.T) {
	bus := NewBus()

	scoreFired := 0
	sessionFired := 0
	_ = bus.ScoreUpdated.Subscribe("t", func(model.ScoreUpdated) { scoreFired++ })
	_ = bus.SessionUpdated.Subscribe("t", func(model.SessionUpdate) { sessionFired++ })

	bus.ScoreUpdated.Publish(model.ScoreUpdated{})

	if scoreFired != 1 {
		t.Errorf("expected score handler to fire once, got %d", scoreFired)
	}
	if sessionFired != 0 {
		t.Errorf("session handler fired for a score event")
	}
}
