// Package registry holds the authoritative in-memory record of the
// current session, team scores, the transaction log, and every connected
// device. All mutation goes through its methods so the single-session and
// single-owner invariants stay enforceable at one choke point.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

const sessionIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

type Registry struct {
	cfg          conf.SessionConfig
	bus          *events.Bus
	sessions     model.SessionRepository     // nil disables persistence
	transactions model.TransactionRepository // nil disables persistence

	mu         sync.RWMutex
	current    *model.Session
	devices    map[string]*model.Device
	scores     map[string]*model.TeamScore
	txLog      model.Transactions
	scanned    map[string]map[string]bool // device id -> token ids
	teamGroups map[string]map[string]int  // team id -> group id -> count
	overtime   *time.Timer
}

func New(cfg conf.SessionConfig, bus *events.Bus, sessions model.SessionRepository, transactions model.TransactionRepository) *Registry {
	if cfg.MaxGMStations <= 0 {
		cfg.MaxGMStations = 5
	}
	return &Registry{
		cfg:          cfg,
		bus:          bus,
		sessions:     sessions,
		transactions: transactions,
		devices:      make(map[string]*model.Device),
		scores:       make(map[string]*model.TeamScore),
		scanned:      make(map[string]map[string]bool),
		teamGroups:   make(map[string]map[string]int),
	}
}

// Load restores the persisted current session and its transaction log at
// startup. Missing persistence or no stored session is not an error.
func (r *Registry) Load() error {
	if r.sessions == nil {
		return nil
	}
	session, err := r.sessions.GetCurrent()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = session
	for _, teamID := range session.TeamIDs {
		r.scores[teamID] = &model.TeamScore{TeamID: teamID, LastUpdated: time.Now()}
	}
	if r.transactions != nil {
		txs, err := r.transactions.GetBySession(session.ID)
		if err != nil {
			log.Error("registry: loading transaction log", "sessionId", session.ID, err)
		} else {
			r.txLog = txs
			r.replayLocked(txs)
		}
	}
	log.Info("registry: restored persisted session", "sessionId", session.ID, "status", string(session.Status))
	return nil
}

// replayLocked rebuilds scores and scanned sets from the stored log.
func (r *Registry) replayLocked(txs model.Transactions) {
	for _, tx := range txs {
		if set, ok := r.scanned[tx.DeviceID]; ok {
			set[tx.TokenID] = true
		} else {
			r.scanned[tx.DeviceID] = map[string]bool{tx.TokenID: true}
		}
		if tx.TeamID == "" {
			continue
		}
		score := r.scoreLocked(tx.TeamID)
		score.Score += tx.Points
		score.TokensScanned++
	}
}

func (r *Registry) scoreLocked(teamID string) *model.TeamScore {
	score, ok := r.scores[teamID]
	if !ok {
		score = &model.TeamScore{TeamID: teamID}
		r.scores[teamID] = score
	}
	return score
}

// CreateSession starts a new session. Rejected while another session is
// current. Devices already connected are re-registered into the session
// strictly sequentially so a partially-initialized device list can never
// be observed.
func (r *Registry) CreateSession(name string, teamIDs []string) (*model.Session, error) {
	if name == "" {
		return nil, model.ErrValidation
	}
	r.mu.Lock()
	if r.current != nil && r.current.Status != model.SessionEnded {
		r.mu.Unlock()
		return nil, model.ErrSessionConflict
	}
	id, err := gonanoid.Generate(sessionIDAlphabet, 10)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	now := time.Now()
	session := &model.Session{
		ID:        id,
		Name:      name,
		Status:    model.SessionActive,
		StartTime: now,
		TeamIDs:   append([]string(nil), teamIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.current = session
	r.scores = make(map[string]*model.TeamScore)
	r.teamGroups = make(map[string]map[string]int)
	r.txLog = nil
	for _, teamID := range teamIDs {
		r.scores[teamID] = &model.TeamScore{TeamID: teamID, LastUpdated: now}
	}

	// One device at a time, in stable order.
	ids := make([]string, 0, len(r.devices))
	for deviceID := range r.devices {
		ids = append(ids, deviceID)
	}
	sort.Strings(ids)
	for _, deviceID := range ids {
		d := r.devices[deviceID]
		if d.Status == model.DeviceConnected {
			session.Devices = append(session.Devices, d.Ref())
		}
	}

	if r.cfg.Duration > 0 {
		r.overtime = time.AfterFunc(r.cfg.Duration, func() {
			r.bus.SessionOvertime.Publish(model.SessionOvertime{SessionID: id, Since: time.Now()})
		})
	}
	r.mu.Unlock()

	r.persistSave(session)
	r.publishSession()
	return r.CurrentSession(), nil
}

// SetSessionStatus pauses or resumes the current session.
func (r *Registry) SetSessionStatus(status model.SessionStatus) error {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return model.ErrNoSession
	}
	r.current.Status = status
	r.current.UpdatedAt = time.Now()
	session := r.current
	r.mu.Unlock()

	r.persistUpdate(session, "status", "updated_at")
	r.publishSession()
	return nil
}

// UpdateSession applies a partial update to the current session. Nil
// fields are left untouched.
func (r *Registry) UpdateSession(name *string, status *model.SessionStatus) error {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return model.ErrNoSession
	}
	cols := []string{"updated_at"}
	if name != nil {
		r.current.Name = *name
		cols = append(cols, "name")
	}
	if status != nil {
		r.current.Status = *status
		cols = append(cols, "status")
	}
	r.current.UpdatedAt = time.Now()
	session := r.current
	r.mu.Unlock()

	r.persistUpdate(session, cols...)
	r.publishSession()
	return nil
}

// EndSession closes and clears the current session.
func (r *Registry) EndSession() error {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return model.ErrNoSession
	}
	now := time.Now()
	r.current.Status = model.SessionEnded
	r.current.EndTime = &now
	r.current.UpdatedAt = now
	session := r.current
	r.current = nil
	r.stopOvertimeLocked()
	r.mu.Unlock()

	r.persistUpdate(session, "status", "end_time", "updated_at")
	r.bus.SessionUpdated.Publish(model.SessionUpdate{Session: session})
	return nil
}

func (r *Registry) stopOvertimeLocked() {
	if r.overtime != nil {
		r.overtime.Stop()
		r.overtime = nil
	}
}

// CurrentSession returns a copy of the current session, or nil.
func (r *Registry) CurrentSession() *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	cp := *r.current
	cp.TeamIDs = append([]string(nil), r.current.TeamIDs...)
	cp.Devices = append([]model.DeviceRef(nil), r.current.Devices...)
	return &cp
}

// UpdateDevice upserts a device record by id. isNew is true on first
// contact, isReconnection when a disconnected device comes back. Routine
// heartbeat refreshes report neither, so downstream broadcasts stay quiet.
func (r *Registry) UpdateDevice(d model.Device) (device *model.Device, isNew, isReconnection bool) {
	r.mu.Lock()
	now := time.Now()
	existing, ok := r.devices[d.ID]
	switch {
	case !ok:
		isNew = true
		record := d
		record.Status = model.DeviceConnected
		record.ConnectedAt = now
		record.LastHeartbeat = now
		r.devices[d.ID] = &record
		existing = &record
	default:
		if existing.Status == model.DeviceDisconnected {
			isReconnection = true
			existing.ConnectedAt = now
		}
		existing.Status = model.DeviceConnected
		existing.LastHeartbeat = now
		if d.Name != "" {
			existing.Name = d.Name
		}
		if d.IPAddress != "" {
			existing.IPAddress = d.IPAddress
		}
		if d.Type != "" {
			existing.Type = d.Type
		}
	}
	if r.current != nil {
		r.attachDeviceLocked(existing)
	}
	cp := r.deviceCopyLocked(existing)
	r.mu.Unlock()

	if isNew || isReconnection {
		r.bus.DeviceConnected.Publish(model.DeviceEvent{
			DeviceID:     cp.ID,
			Type:         cp.Type,
			Name:         cp.Name,
			IPAddress:    cp.IPAddress,
			Reconnection: isReconnection,
		})
	}
	return cp, isNew, isReconnection
}

func (r *Registry) attachDeviceLocked(d *model.Device) {
	for _, ref := range r.current.Devices {
		if ref.ID == d.ID {
			return
		}
	}
	r.current.Devices = append(r.current.Devices, d.Ref())
}

func (r *Registry) deviceCopyLocked(d *model.Device) *model.Device {
	cp := *d
	cp.ScannedTokens = append([]string(nil), d.ScannedTokens...)
	return &cp
}

// MarkDisconnected flags a device as dropped. The record is kept so a
// reconnection can restore its state.
func (r *Registry) MarkDisconnected(deviceID string) {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return
	}
	d.Status = model.DeviceDisconnected
	devType := d.Type
	r.mu.Unlock()

	r.bus.DeviceDisconnected.Publish(model.DeviceEvent{
		DeviceID:     deviceID,
		Type:         devType,
		Disconnected: true,
	})
}

// Heartbeat refreshes a device's liveness timestamp without triggering
// any broadcast.
func (r *Registry) Heartbeat(deviceID string) {
	r.mu.Lock()
	if d, ok := r.devices[deviceID]; ok {
		d.LastHeartbeat = time.Now()
	}
	r.mu.Unlock()
}

// CanAcceptGMStation enforces the configured cap on concurrently
// connected GM-type devices.
func (r *Registry) CanAcceptGMStation() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, d := range r.devices {
		if d.Type == model.DeviceGM && d.Status == model.DeviceConnected {
			count++
		}
	}
	return count < r.cfg.MaxGMStations
}

// Devices returns a snapshot of every known device record.
func (r *Registry) Devices() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *r.deviceCopyLocked(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasScanned reports whether the device already scanned this token.
func (r *Registry) HasScanned(deviceID, tokenID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanned[deviceID][tokenID]
}

// RecordScan adds tokenID to the device's scanned set. Returns false on a
// duplicate.
func (r *Registry) RecordScan(deviceID, tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.scanned[deviceID]
	if !ok {
		set = make(map[string]bool)
		r.scanned[deviceID] = set
	}
	if set[tokenID] {
		return false
	}
	set[tokenID] = true
	if d, ok := r.devices[deviceID]; ok {
		d.ScannedTokens = append(d.ScannedTokens, tokenID)
	}
	return true
}

// ScannedTokens returns the device's scanned set in scan order, for
// restoring local duplicate suppression after a reconnect.
func (r *Registry) ScannedTokens(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.devices[deviceID]; ok {
		return append([]string(nil), d.ScannedTokens...)
	}
	return nil
}

// AddTransaction appends to the session log, persists, and applies points.
func (r *Registry) AddTransaction(tx model.Transaction) {
	r.mu.Lock()
	r.txLog = append(r.txLog, tx)
	var score *model.TeamScore
	if tx.TeamID != "" {
		score = r.scoreLocked(tx.TeamID)
		score.Score += tx.Points
		score.TokensScanned++
		score.LastUpdated = time.Now()
	}
	var snapshot model.TeamScore
	if score != nil {
		snapshot = *score
	}
	sessionID := tx.SessionID
	r.mu.Unlock()

	if r.transactions != nil {
		if err := r.transactions.Save(&tx); err != nil {
			log.Error("registry: persisting transaction", "transactionId", tx.ID, err)
		}
	}
	if score != nil {
		r.bus.ScoreUpdated.Publish(model.ScoreUpdated{TeamScore: snapshot, SessionID: sessionID})
	}
}

// DeleteTransaction removes a transaction from the log and reverses its
// score contribution.
func (r *Registry) DeleteTransaction(transactionID string) error {
	r.mu.Lock()
	idx := -1
	for i, tx := range r.txLog {
		if tx.ID == transactionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return model.ErrNotFound
	}
	tx := r.txLog[idx]
	r.txLog = append(r.txLog[:idx], r.txLog[idx+1:]...)
	var snapshot *model.TeamScore
	if tx.TeamID != "" {
		score := r.scoreLocked(tx.TeamID)
		score.Score -= tx.Points
		score.TokensScanned--
		score.LastUpdated = time.Now()
		cp := *score
		snapshot = &cp
	}
	if set, ok := r.scanned[tx.DeviceID]; ok {
		delete(set, tx.TokenID)
	}
	if d, ok := r.devices[tx.DeviceID]; ok {
		for i, tokenID := range d.ScannedTokens {
			if tokenID == tx.TokenID {
				d.ScannedTokens = append(d.ScannedTokens[:i], d.ScannedTokens[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if r.transactions != nil {
		if err := r.transactions.Delete(transactionID); err != nil {
			log.Error("registry: deleting transaction", "transactionId", transactionID, err)
		}
	}
	r.bus.TransactionDeleted.Publish(model.TransactionDeleted{
		TransactionID: transactionID,
		SessionID:     tx.SessionID,
	})
	if snapshot != nil {
		r.bus.ScoreUpdated.Publish(model.ScoreUpdated{TeamScore: *snapshot, SessionID: tx.SessionID})
	}
	return nil
}

// Transactions returns the complete log for the current session.
func (r *Registry) Transactions() model.Transactions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(model.Transactions(nil), r.txLog...)
}

// AdjustScore applies a manual GM score correction.
func (r *Registry) AdjustScore(teamID string, delta int) error {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return model.ErrNoSession
	}
	score := r.scoreLocked(teamID)
	score.Score += delta
	score.LastUpdated = time.Now()
	snapshot := *score
	sessionID := r.current.ID
	r.mu.Unlock()

	r.bus.ScoreUpdated.Publish(model.ScoreUpdated{TeamScore: snapshot, SessionID: sessionID})
	return nil
}

// ResetScores zeroes every team's score.
func (r *Registry) ResetScores() {
	r.mu.Lock()
	sessionID := ""
	if r.current != nil {
		sessionID = r.current.ID
	}
	for _, score := range r.scores {
		score.Score = 0
		score.TokensScanned = 0
		score.CompletedGroups = nil
		score.LastUpdated = time.Now()
	}
	r.teamGroups = make(map[string]map[string]int)
	r.mu.Unlock()

	r.bus.ScoresReset.Publish(model.ScoresReset{SessionID: sessionID})
}

// Scores returns every team's running score.
func (r *Registry) Scores() []model.TeamScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.TeamScore, 0, len(r.scores))
	for _, score := range r.scores {
		out = append(out, *score)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

// RecordGroupToken counts one token toward a team's group and reports
// whether the group just completed.
func (r *Registry) RecordGroupToken(teamID, groupID string, groupSize int) bool {
	if teamID == "" || groupID == "" || groupSize <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	groups, ok := r.teamGroups[teamID]
	if !ok {
		groups = make(map[string]int)
		r.teamGroups[teamID] = groups
	}
	groups[groupID]++
	if groups[groupID] != groupSize {
		return false
	}
	score := r.scoreLocked(teamID)
	score.CompletedGroups = append(score.CompletedGroups, groupID)
	return true
}

// Reset wipes all session state. Re-entrancy is guarded one level up, at
// the system-reset operation that also clears the video and offline
// queues.
func (r *Registry) Reset() {
	r.mu.Lock()
	previous := r.current
	now := time.Now()
	if previous != nil {
		previous.Status = model.SessionEnded
		previous.EndTime = &now
		previous.UpdatedAt = now
	}
	r.current = nil
	r.stopOvertimeLocked()
	r.scores = make(map[string]*model.TeamScore)
	r.teamGroups = make(map[string]map[string]int)
	r.txLog = nil
	r.scanned = make(map[string]map[string]bool)
	for _, d := range r.devices {
		d.ScannedTokens = nil
	}
	r.mu.Unlock()

	if previous != nil {
		r.persistUpdate(previous, "status", "end_time", "updated_at")
		if r.transactions != nil {
			if err := r.transactions.DeleteBySession(previous.ID); err != nil {
				log.Error("registry: clearing persisted transactions", "sessionId", previous.ID, err)
			}
		}
	}
	r.bus.SessionUpdated.Publish(model.SessionUpdate{Session: nil})
	r.bus.ScoresReset.Publish(model.ScoresReset{})
}

func (r *Registry) publishSession() {
	r.bus.SessionUpdated.Publish(model.SessionUpdate{Session: r.CurrentSession()})
}

func (r *Registry) persistSave(session *model.Session) {
	if r.sessions == nil {
		return
	}
	if _, err := r.sessions.Save(session); err != nil {
		log.Error("registry: persisting session", "sessionId", session.ID, err)
	}
}

func (r *Registry) persistUpdate(session *model.Session, cols ...string) {
	if r.sessions == nil {
		return
	}
	if err := r.sessions.Update(session.ID, session, cols...); err != nil {
		log.Error("registry: updating persisted session", "sessionId", session.ID, err)
	}
}
