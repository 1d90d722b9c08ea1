// Package core wires the domain services together: scan intake, batch
// replay, and the full-system reset.
package core

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/offline"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/video"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Service is the domain-facing command surface: scans come in, domain
// events go out through the bus.
type Service struct {
	Registry *registry.Registry
	Offline  *offline.Queue
	Video    *video.Orchestrator
	Catalog  model.TokenCatalog
	Bus      *events.Bus

	resetting atomic.Bool
	offline   atomic.Bool
}

func NewService(reg *registry.Registry, off *offline.Queue, vid *video.Orchestrator, catalog model.TokenCatalog, bus *events.Bus) *Service {
	return &Service{Registry: reg, Offline: off, Video: vid, Catalog: catalog, Bus: bus}
}

// SetOffline marks scanner connectivity up or down. While down every
// scan is buffered regardless of session state; coming back up replays
// the buffer.
func (s *Service) SetOffline(offline bool) {
	if s.offline.Swap(offline) == offline {
		return
	}
	if offline {
		log.Info("core: connectivity marked down, buffering scans")
		return
	}
	log.Info("core: connectivity restored, replaying buffered scans")
	s.ReplayOffline()
}

// OfflineMode reports whether connectivity is marked down.
func (s *Service) OfflineMode() bool {
	return s.offline.Load()
}

// SubmitScan handles a live scan submission. Scans outside an active,
// non-paused session, or while connectivity is marked down, are queued
// (never dropped) until the offline queue is at capacity.
func (s *Service) SubmitScan(req model.ScanRequest) model.ScanResponse {
	if err := req.Validate(); err != nil {
		return model.ScanResponse{Status: model.ScanRejected, Message: "tokenId and deviceId are required"}
	}
	token, ok := s.Catalog.Get(req.TokenID)
	if !ok {
		return model.ScanResponse{Status: model.ScanRejected, Message: model.ErrUnknownToken.Error()}
	}
	if s.Registry.HasScanned(req.DeviceID, req.TokenID) {
		return model.ScanResponse{Status: model.ScanRejected, Message: model.ErrDuplicateScan.Error()}
	}

	session := s.Registry.CurrentSession()
	if s.offline.Load() || !session.IsAcceptingScans() {
		queued := s.Offline.Enqueue(req)
		if queued == nil {
			return model.ScanResponse{Status: model.ScanRejected, Message: model.ErrQueueFull.Error()}
		}
		return model.ScanResponse{Status: model.ScanQueued, TransactionID: queued.TransactionID}
	}

	txID, videoQueued := s.apply(session, token, req)
	return model.ScanResponse{Status: model.ScanAccepted, TransactionID: txID, VideoQueued: videoQueued}
}

// apply commits an accepted scan: scanned-set update, transaction,
// score, group tracking, and the video cue.
func (s *Service) apply(session *model.Session, token *model.Token, req model.ScanRequest) (string, bool) {
	s.Registry.RecordScan(req.DeviceID, req.TokenID)

	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	tx := model.Transaction{
		ID:         uuid.New().String(),
		SessionID:  session.ID,
		TokenID:    token.ID,
		TeamID:     req.TeamID,
		DeviceID:   req.DeviceID,
		Points:     token.ValueRating,
		MemoryType: token.MemoryType,
		Timestamp:  ts,
	}
	s.Registry.AddTransaction(tx)
	s.Bus.TransactionNew.Publish(model.TransactionNew{
		Transaction: tx,
		MemoryType:  token.MemoryType,
		ValueRating: token.ValueRating,
	})

	if token.GroupID != "" {
		size := s.Catalog.GroupSize(token.GroupID)
		if s.Registry.RecordGroupToken(req.TeamID, token.GroupID, size) {
			s.Bus.GroupCompleted.Publish(model.GroupCompleted{
				TeamID:  req.TeamID,
				GroupID: token.GroupID,
			})
		}
	}

	videoQueued := false
	if token.HasVideo {
		if _, err := s.Video.Enqueue(token, req.DeviceID); err == nil {
			videoQueued = true
		}
	}
	return tx.ID, videoQueued
}

// replay processes one buffered or batched scan. Unlike SubmitScan it
// returns errors, so batch responses can enumerate per-item failures.
func (s *Service) replay(req model.ScanRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	token, ok := s.Catalog.Get(req.TokenID)
	if !ok {
		return "", model.ErrUnknownToken
	}
	session := s.Registry.CurrentSession()
	if !session.IsAcceptingScans() {
		return "", model.ErrNoSession
	}
	if s.Registry.HasScanned(req.DeviceID, req.TokenID) {
		return "", model.ErrDuplicateScan
	}
	txID, _ := s.apply(session, token, req)
	return txID, nil
}

// SubmitBatch replays a client-identified batch. Replay of a known batch
// id returns the cached prior response verbatim.
func (s *Service) SubmitBatch(batch model.BatchRequest) (model.BatchAck, error) {
	if err := batch.Validate(); err != nil {
		return model.BatchAck{}, err
	}
	return s.Offline.ProcessBatch(batch, s.replay), nil
}

// ReplayOffline drains the offline buffer through the scan pipeline.
// Called when a session becomes active again.
func (s *Service) ReplayOffline() {
	s.Offline.ProcessQueued(s.replay)
}

// CreateSession starts a session and immediately replays anything that
// queued up while the system had none.
func (s *Service) CreateSession(name string, teamIDs []string) (*model.Session, error) {
	session, err := s.Registry.CreateSession(name, teamIDs)
	if err != nil {
		return nil, err
	}
	s.ReplayOffline()
	return session, nil
}

// ResumeSession reactivates a paused session and replays the offline
// buffer.
func (s *Service) ResumeSession() error {
	if err := s.Registry.SetSessionStatus(model.SessionActive); err != nil {
		return err
	}
	s.ReplayOffline()
	return nil
}

// SystemReset wipes session state and both queues. Guarded by a
// compare-and-swap: a second reset while one is in flight is rejected
// with model.ErrResetInProgress, never queued.
func (s *Service) SystemReset() error {
	if !s.resetting.CompareAndSwap(false, true) {
		return model.ErrResetInProgress
	}
	defer s.resetting.Store(false)

	log.Info("core: full system reset requested")
	s.Video.ClearQueue()
	s.Offline.Clear()
	s.Registry.Reset()
	log.Info("core: full system reset complete")
	return nil
}
