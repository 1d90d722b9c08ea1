// Package offline buffers scan submissions while no session is active or
// connectivity is down, and replays them as idempotent batches.
package offline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Processor applies one scan and returns the resulting transaction id.
// Supplied by the scan service.
type Processor func(req model.ScanRequest) (transactionID string, err error)

// cachedBatch is one idempotency-cache entry. done is closed once ack is
// final; an entry with an open done channel is still being processed.
type cachedBatch struct {
	ack      model.BatchAck
	storedAt time.Time
	done     chan struct{}
}

// Queue is the offline-resilient scan buffer plus the batch idempotency
// cache. Batch replay of a known id returns the cached response verbatim;
// that protects against client retries after a timeout that actually
// succeeded server-side.
type Queue struct {
	cfg conf.OfflineConfig
	bus *events.Bus

	mu      sync.Mutex
	items   []model.QueuedScan
	batches map[string]*cachedBatch
}

func NewQueue(cfg conf.OfflineConfig, bus *events.Bus) *Queue {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.BatchRetention <= 0 {
		cfg.BatchRetention = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	return &Queue{
		cfg:     cfg,
		bus:     bus,
		batches: make(map[string]*cachedBatch),
	}
}

// Enqueue buffers a scan. Returns nil when the queue is at capacity; the
// caller must surface a capacity error, never drop silently.
func (q *Queue) Enqueue(req model.ScanRequest) *model.QueuedScan {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cfg.QueueCapacity {
		log.Warn("offline: queue at capacity, rejecting scan",
			"capacity", q.cfg.QueueCapacity, "tokenId", req.TokenID)
		return nil
	}
	item := model.QueuedScan{
		ScanRequest:   req,
		TransactionID: uuid.New().String(),
		QueuedAt:      time.Now(),
	}
	q.items = append(q.items, item)
	return &item
}

// Clear wipes the buffer and the batch cache (system reset).
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.batches = make(map[string]*cachedBatch)
}

// Size returns the number of buffered scans.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ProcessQueued replays every buffered scan through the processor. Items
// are processed independently; successes are consumed, failures are
// re-queued (never duplicated) with an incremented retry count. Emits
// offline:queue:processed when anything was attempted.
func (q *Queue) ProcessQueued(process Processor) {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var processed, failed int
	var requeue []model.QueuedScan
	for _, item := range pending {
		if _, err := process(item.ScanRequest); err != nil {
			item.RetryCount++
			failed++
			requeue = append(requeue, item)
			log.Warn("offline: queued scan failed",
				"tokenId", item.TokenID, "retries", item.RetryCount, err)
			continue
		}
		processed++
	}

	if len(requeue) > 0 {
		q.mu.Lock()
		for _, item := range requeue {
			if len(q.items) >= q.cfg.QueueCapacity {
				break
			}
			q.items = append(q.items, item)
		}
		q.mu.Unlock()
	}

	q.bus.OfflineProcessed.Publish(model.OfflineQueueProcessed{
		ProcessedCount: processed,
		FailedCount:    failed,
		TotalCount:     len(pending),
	})
}

// ProcessBatch applies a client-identified batch of scans. A previously
// seen batch id (within the retention window) returns the cached ack
// unchanged without reprocessing anything. One item's failure never fails
// the batch.
func (q *Queue) ProcessBatch(batch model.BatchRequest, process Processor) model.BatchAck {
	deviceID := ""
	if len(batch.Transactions) > 0 {
		deviceID = batch.Transactions[0].DeviceID
	}

	// The entry is claimed under the lock before any item runs, so a
	// retry racing the still-in-flight original waits for that ack
	// instead of processing the items a second time.
	q.mu.Lock()
	if entry, ok := q.batches[batch.BatchID]; ok {
		q.mu.Unlock()
		<-entry.done
		log.Info("offline: returning cached batch response", "batchId", batch.BatchID)
		return entry.ack
	}
	entry := &cachedBatch{storedAt: time.Now(), done: make(chan struct{})}
	q.batches[batch.BatchID] = entry
	q.mu.Unlock()

	ack := model.BatchAck{
		BatchID:    batch.BatchID,
		DeviceID:   deviceID,
		TotalCount: len(batch.Transactions),
		Results:    make([]model.BatchItemResult, 0, len(batch.Transactions)),
	}
	for _, req := range batch.Transactions {
		txID, err := process(req)
		if err != nil {
			ack.FailedCount++
			ack.Results = append(ack.Results, model.BatchItemResult{
				TokenID: req.TokenID,
				Status:  "failed",
				Error:   err.Error(),
			})
			continue
		}
		ack.ProcessedCount++
		ack.Results = append(ack.Results, model.BatchItemResult{
			TokenID:       req.TokenID,
			Status:        "processed",
			TransactionID: txID,
		})
	}

	entry.ack = ack
	close(entry.done)

	q.bus.BatchAck.Publish(ack)
	return ack
}

// RunSweeper periodically evicts batch records older than the retention
// window. Blocks until ctx is cancelled.
func (q *Queue) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(time.Now())
		}
	}
}

func (q *Queue) sweep(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, entry := range q.batches {
		select {
		case <-entry.done:
		default:
			continue // still in flight
		}
		if now.Sub(entry.storedAt) > q.cfg.BatchRetention {
			delete(q.batches, id)
		}
	}
}
