// Package events provides typed publish/subscribe topics for domain
// events. Each topic fans out to id-keyed handlers; a duplicate
// subscription id is an error, which is what makes listener setup
// provably idempotent for the broadcast layer.
package events

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

var (
	ErrSubscriberExists   = errors.New("subscriber id already exists")
	ErrSubscriberNotFound = errors.New("subscriber id not found")
)

// Topic is a single typed event stream. All methods are safe for
// concurrent use. Publish dispatches synchronously; handlers must not
// block.
type Topic[T any] struct {
	mu        sync.RWMutex
	handlers  map[string]func(T)
	published atomic.Uint64
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{handlers: make(map[string]func(T))}
}

// Subscribe registers a handler under id. Returns ErrSubscriberExists if
// the id is already registered.
func (t *Topic[T]) Subscribe(id string, fn func(T)) error {
	if fn == nil {
		return errors.New("handler cannot be nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[id]; exists {
		return ErrSubscriberExists
	}
	t.handlers[id] = fn
	return nil
}

// Unsubscribe removes a handler by id.
func (t *Topic[T]) Unsubscribe(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(t.handlers, id)
	return nil
}

// Publish delivers v to every subscribed handler.
func (t *Topic[T]) Publish(v T) {
	t.published.Add(1)
	t.mu.RLock()
	handlers := make([]func(T), 0, len(t.handlers))
	for _, fn := range t.handlers {
		handlers = append(handlers, fn)
	}
	t.mu.RUnlock()
	for _, fn := range handlers {
		fn(v)
	}
}

// Published returns the number of Publish calls, for diagnostics.
func (t *Topic[T]) Published() uint64 { return t.published.Load() }

// SubscriberCount returns the number of active handlers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Bus groups every domain topic. Services publish to it; the broadcast
// coordinator is its main subscriber.
type Bus struct {
	SessionUpdated     *Topic[model.SessionUpdate]
	SessionOvertime    *Topic[model.SessionOvertime]
	DeviceConnected    *Topic[model.DeviceEvent]
	DeviceDisconnected *Topic[model.DeviceEvent]
	TransactionNew     *Topic[model.TransactionNew]
	TransactionDeleted *Topic[model.TransactionDeleted]
	ScoreUpdated       *Topic[model.ScoreUpdated]
	ScoresReset        *Topic[model.ScoresReset]
	GroupCompleted     *Topic[model.GroupCompleted]
	VideoStatus        *Topic[model.VideoStatus]
	VideoProgress      *Topic[model.VideoProgress]
	VideoQueueUpdate   *Topic[model.VideoQueueUpdate]
	OfflineProcessed   *Topic[model.OfflineQueueProcessed]
	BatchAck           *Topic[model.BatchAck]
	SystemError        *Topic[model.ErrorEvent]
}

func NewBus() *Bus {
	return &Bus{
		SessionUpdated:     NewTopic[model.SessionUpdate](),
		SessionOvertime:    NewTopic[model.SessionOvertime](),
		DeviceConnected:    NewTopic[model.DeviceEvent](),
		DeviceDisconnected: NewTopic[model.DeviceEvent](),
		TransactionNew:     NewTopic[model.TransactionNew](),
		TransactionDeleted: NewTopic[model.TransactionDeleted](),
		ScoreUpdated:       NewTopic[model.ScoreUpdated](),
		ScoresReset:        NewTopic[model.ScoresReset](),
		GroupCompleted:     NewTopic[model.GroupCompleted](),
		VideoStatus:        NewTopic[model.VideoStatus](),
		VideoProgress:      NewTopic[model.VideoProgress](),
		VideoQueueUpdate:   NewTopic[model.VideoQueueUpdate](),
		OfflineProcessed:   NewTopic[model.OfflineQueueProcessed](),
		BatchAck:           NewTopic[model.BatchAck](),
		SystemError:        NewTopic[model.ErrorEvent](),
	}
}
