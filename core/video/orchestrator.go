// Package video owns the playback queue and drives the external player
// through a polling-based state machine. Player failures never propagate
// to callers: items fail, events fire, and the queue advances.
package video

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/player"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

const completionThreshold = 0.95

// Orchestrator serializes all queue mutations behind one mutex and runs
// playback kicks on its own goroutine, never synchronously from Enqueue,
// so callers can attach listeners after enqueueing and still observe the
// resulting events.
type Orchestrator struct {
	cfg    conf.VideoConfig
	client *player.Client
	bus    *events.Bus

	mu      sync.Mutex
	queue   []*model.PlaybackItem
	retired []model.PlaybackItem
	current *model.PlaybackItem

	fallback      *time.Timer
	countdown     *time.Timer
	monitorCancel context.CancelFunc

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewOrchestrator(cfg conf.VideoConfig, client *player.Client, bus *events.Bus) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.GracePolls <= 0 {
		cfg.GracePolls = 3
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 30
	}
	if cfg.FallbackBuffer <= 0 {
		cfg.FallbackBuffer = 10 * time.Second
	}
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		bus:    bus,
		kick:   make(chan struct{}, 1),
	}
}

// Start launches the scheduling loop. Stop releases it.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)
	go o.run()
}

func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Lock()
	o.clearTimersLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) run() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.kick:
			o.ProcessQueue()
		}
	}
}

// scheduleKick requests queue processing on the next scheduler pass. The
// deferral is load-bearing: Enqueue must return before any playback event
// fires.
func (o *Orchestrator) scheduleKick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Enqueue appends a playback request for a token that carries a video
// asset. Returns model.ErrValidation when the token has none.
func (o *Orchestrator) Enqueue(token *model.Token, requestedBy string) (*model.PlaybackItem, error) {
	if token == nil || !token.HasVideo || token.VideoPath == "" {
		return nil, model.ErrValidation
	}
	item := &model.PlaybackItem{
		ID:          uuid.New().String(),
		TokenID:     token.ID,
		VideoPath:   token.VideoPath,
		RequestedBy: requestedBy,
		Status:      model.PlaybackPending,
		RequestedAt: time.Now(),
	}
	if token.Duration > 0 {
		d := token.Duration
		item.Duration = &d
	}

	o.mu.Lock()
	o.queue = append(o.queue, item)
	idle := o.current == nil
	o.mu.Unlock()

	o.publishQueue()
	if idle {
		o.scheduleKick()
	}
	return item, nil
}

// ProcessQueue pops the first pending item and begins playback. It is a
// no-op while something is playing. An empty queue emits the idle signal
// and, when configured, commands the idle loop.
func (o *Orchestrator) ProcessQueue() {
	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return
	}
	var next *model.PlaybackItem
	for i, it := range o.queue {
		if it.Status == model.PlaybackPending {
			next = it
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
	if next == nil {
		o.mu.Unlock()
		o.emitIdle()
		return
	}
	o.current = next
	o.mu.Unlock()

	o.playVideo(next)
}

func (o *Orchestrator) emitIdle() {
	o.bus.VideoStatus.Publish(model.VideoStatus{Status: "idle", QueueLength: o.pendingCount()})
	if o.cfg.IdleLoopPath != "" {
		o.client.Play(context.Background(), o.cfg.IdleLoopPath)
		o.client.SetLoop(context.Background(), true)
	}
}

// playVideo transitions the item pending→loading→playing and arms the
// monitoring machinery.
func (o *Orchestrator) playVideo(item *model.PlaybackItem) {
	o.mu.Lock()
	item.Status = model.PlaybackLoading
	o.clearTimersLocked() // a stale timer from the previous item must never fire against this one
	o.mu.Unlock()

	o.bus.VideoStatus.Publish(model.VideoStatus{
		Status:      "loading",
		TokenID:     item.TokenID,
		QueueLength: o.pendingCount(),
	})

	res := o.client.Play(context.Background(), item.VideoPath)
	now := time.Now()

	o.mu.Lock()
	item.Status = model.PlaybackPlaying
	item.StartedAt = &now
	o.mu.Unlock()

	live := o.client.Wired() && !res.Degraded
	duration := o.resolveDuration(item, live)
	expectedEnd := now.Add(time.Duration(duration * float64(time.Second)))

	o.mu.Lock()
	item.Duration = &duration
	if o.current != item { // superseded while probing duration
		o.mu.Unlock()
		return
	}
	// Hard fallback guarantees completion even if polling silently stops.
	o.fallback = time.AfterFunc(
		time.Duration(duration*float64(time.Second))+o.cfg.FallbackBuffer,
		func() { o.CompletePlayback(item) },
	)
	if live {
		mctx, mcancel := context.WithCancel(o.ctx)
		o.monitorCancel = mcancel
		go o.monitor(mctx, item, duration)
	} else {
		// Simulated playback: a local countdown drives completion.
		o.countdown = time.AfterFunc(
			time.Duration(duration*float64(time.Second)),
			func() { o.CompletePlayback(item) },
		)
	}
	o.mu.Unlock()

	o.bus.VideoStatus.Publish(model.VideoStatus{
		Status:      "playing",
		TokenID:     item.TokenID,
		Duration:    duration,
		ExpectedEnd: &expectedEnd,
		QueueLength: o.pendingCount(),
	})
	o.publishQueue()
}

// resolveDuration returns the authoritative duration in seconds. With a
// live player it briefly waits for the item to load and then polls for the
// reported length with a bounded retry loop; below the sanity threshold
// the configured default is substituted. Simulated playback uses the
// catalog duration.
func (o *Orchestrator) resolveDuration(item *model.PlaybackItem, live bool) float64 {
	if !live {
		if item.Duration != nil && *item.Duration > o.cfg.MinDuration {
			return *item.Duration
		}
		return o.cfg.DefaultDuration
	}
	time.Sleep(o.cfg.PollInterval / 2)
	for attempt := 0; attempt < 5; attempt++ {
		st := o.client.GetStatus(context.Background())
		if st.Connected && st.Length > o.cfg.MinDuration {
			return st.Length
		}
		time.Sleep(o.cfg.PollInterval / 2)
	}
	log.Warn("video: could not discover duration, using default",
		"tokenId", item.TokenID, "default", o.cfg.DefaultDuration)
	return o.cfg.DefaultDuration
}

// monitor polls the player roughly once per second. Transient non-playing
// states are tolerated for a bounded number of consecutive polls to absorb
// player transition jitter; exceeding that grace, or a position at or past
// 95%, finalizes completion. A disconnected player stalls the monitor
// harmlessly; the fallback timer still guarantees completion. Poll
// transport errors fail the item so the queue never stalls.
func (o *Orchestrator) monitor(ctx context.Context, item *model.PlaybackItem, duration float64) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	grace := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := o.client.PollStatus(ctx)
		if err != nil {
			log.Warn("video: status poll error, failing item", "tokenId", item.TokenID, "error", err.Error())
			o.FailPlayback(item, "player poll error: "+err.Error())
			return
		}
		if !st.Connected {
			// Player unreachable; leave completion to the fallback timer.
			continue
		}

		if o.paused(item) {
			grace = 0
			continue
		}

		switch st.State {
		case "playing":
			grace = 0
			length := st.Length
			if length <= 0 {
				length = duration
			}
			if length > 0 && st.Position/length >= completionThreshold {
				o.CompletePlayback(item)
				return
			}
			if length > 0 {
				o.bus.VideoProgress.Publish(model.VideoProgress{
					TokenID:  item.TokenID,
					Position: st.Position / length,
					Duration: length,
				})
			}
		case "paused":
			grace = 0
		default:
			grace++
			if grace > o.cfg.GracePolls {
				o.CompletePlayback(item)
				return
			}
		}
	}
}

func (o *Orchestrator) paused(item *model.PlaybackItem) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == item && item.Status == model.PlaybackPaused
}

// CompletePlayback finalizes the current item. Idempotent: a no-op when
// item is no longer current, which guards the race between the fallback
// timer and normal completion.
func (o *Orchestrator) CompletePlayback(item *model.PlaybackItem) {
	o.finish(item, model.PlaybackCompleted, "")
}

// FailPlayback marks the current item failed and advances the queue.
func (o *Orchestrator) FailPlayback(item *model.PlaybackItem, reason string) {
	o.finish(item, model.PlaybackFailed, reason)
}

func (o *Orchestrator) finish(item *model.PlaybackItem, status model.PlaybackStatus, reason string) {
	o.mu.Lock()
	if o.current != item {
		o.mu.Unlock()
		return
	}
	o.clearTimersLocked()
	item.Status = status
	item.Error = reason
	o.retired = append(o.retired, *item)
	o.current = nil
	o.mu.Unlock()

	ev := model.VideoStatus{
		Status:      "completed",
		TokenID:     item.TokenID,
		QueueLength: o.pendingCount(),
	}
	if status == model.PlaybackFailed {
		ev.Status = "error"
		ev.Error = reason
		log.Warn("video: playback failed", "tokenId", item.TokenID, "reason", reason)
	}
	o.bus.VideoStatus.Publish(ev)
	o.publishQueue()
	o.scheduleKick()
}

// clearTimersLocked stops any timer guarding superseded state. Must hold mu.
func (o *Orchestrator) clearTimersLocked() {
	if o.fallback != nil {
		o.fallback.Stop()
		o.fallback = nil
	}
	if o.countdown != nil {
		o.countdown.Stop()
		o.countdown = nil
	}
	if o.monitorCancel != nil {
		o.monitorCancel()
		o.monitorCancel = nil
	}
}

// SkipCurrent stops the current item and advances. No-op when idle.
func (o *Orchestrator) SkipCurrent() {
	o.mu.Lock()
	item := o.current
	o.mu.Unlock()
	if item == nil {
		return
	}
	o.client.Stop(context.Background())
	o.CompletePlayback(item)
}

func (o *Orchestrator) PauseCurrent() {
	o.mu.Lock()
	item := o.current
	if item == nil || item.Status != model.PlaybackPlaying {
		o.mu.Unlock()
		return
	}
	item.Status = model.PlaybackPaused
	o.mu.Unlock()
	o.client.Pause(context.Background())
	o.bus.VideoStatus.Publish(model.VideoStatus{
		Status: "paused", TokenID: item.TokenID, QueueLength: o.pendingCount(),
	})
}

func (o *Orchestrator) ResumeCurrent() {
	o.mu.Lock()
	item := o.current
	if item == nil || item.Status != model.PlaybackPaused {
		o.mu.Unlock()
		return
	}
	item.Status = model.PlaybackPlaying
	o.mu.Unlock()
	o.client.Resume(context.Background())
	o.bus.VideoStatus.Publish(model.VideoStatus{
		Status: "playing", TokenID: item.TokenID, QueueLength: o.pendingCount(),
	})
}

// ClearQueue drops everything, stops playback, and always emits the idle
// signal afterward: downstream consumers use idle as the canonical "safe
// to show the default screen" cue.
func (o *Orchestrator) ClearQueue() {
	o.mu.Lock()
	o.clearTimersLocked()
	for _, it := range o.queue {
		it.Status = model.PlaybackFailed
		it.Error = "queue cleared"
	}
	o.queue = nil
	o.retired = nil
	hadCurrent := o.current != nil
	o.current = nil
	o.mu.Unlock()

	if hadCurrent {
		o.client.Stop(context.Background())
	}
	o.publishQueue()
	o.emitIdle()
}

// ClearPending marks queued-but-unstarted items failed without touching
// the current playback.
func (o *Orchestrator) ClearPending() {
	o.mu.Lock()
	for _, it := range o.queue {
		if it.Status == model.PlaybackPending {
			it.Status = model.PlaybackFailed
			it.Error = "cleared before playback"
			o.retired = append(o.retired, *it)
		}
	}
	o.queue = nil
	o.mu.Unlock()
	o.publishQueue()
}

// ClearCompleted drops retired items kept around for status reporting.
func (o *Orchestrator) ClearCompleted() {
	o.mu.Lock()
	o.retired = nil
	o.mu.Unlock()
	o.publishQueue()
}

// Reorder moves a pending item from one position to another. FIFO order
// is otherwise never changed.
func (o *Orchestrator) Reorder(from, to int) error {
	o.mu.Lock()
	if from < 0 || from >= len(o.queue) || to < 0 || to >= len(o.queue) {
		o.mu.Unlock()
		return model.ErrValidation
	}
	item := o.queue[from]
	o.queue = append(o.queue[:from], o.queue[from+1:]...)
	rest := make([]*model.PlaybackItem, 0, len(o.queue)+1)
	rest = append(rest, o.queue[:to]...)
	rest = append(rest, item)
	rest = append(rest, o.queue[to:]...)
	o.queue = rest
	o.mu.Unlock()
	o.publishQueue()
	return nil
}

// Items returns a snapshot of the queue: current first, then pending,
// then retired items.
func (o *Orchestrator) Items() []model.PlaybackItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.PlaybackItem, 0, len(o.queue)+len(o.retired)+1)
	if o.current != nil {
		out = append(out, *o.current)
	}
	for _, it := range o.queue {
		out = append(out, *it)
	}
	out = append(out, o.retired...)
	return out
}

// CurrentStatus reports the orchestrator state for full-sync snapshots.
func (o *Orchestrator) CurrentStatus() model.VideoStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := model.VideoStatus{Status: "idle", QueueLength: len(o.queue)}
	if o.current != nil {
		st.TokenID = o.current.TokenID
		if o.current.Duration != nil {
			st.Duration = *o.current.Duration
		}
		switch o.current.Status {
		case model.PlaybackLoading:
			st.Status = "loading"
		case model.PlaybackPaused:
			st.Status = "paused"
		default:
			st.Status = "playing"
		}
	}
	return st
}

func (o *Orchestrator) pendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Orchestrator) publishQueue() {
	o.bus.VideoQueueUpdate.Publish(model.VideoQueueUpdate{Items: o.Items()})
}
