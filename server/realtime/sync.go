package realtime

import (
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/player"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/video"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Synchronizer brings a newly identified or resumed connection up to
// date: it joins the connection to its room hierarchy and sends exactly
// one full-state snapshot.
type Synchronizer struct {
	hub    *Hub
	reg    *registry.Registry
	video  *video.Orchestrator
	player *player.Client
}

func NewSynchronizer(hub *Hub, reg *registry.Registry, vid *video.Orchestrator, pl *player.Client) *Synchronizer {
	return &Synchronizer{hub: hub, reg: reg, video: vid, player: pl}
}

// OnIdentified runs once per successful identification: room joins,
// the identification ack, then the snapshot.
func (s *Synchronizer) OnIdentified(c *Client, isReconnection bool) {
	s.hub.JoinRoom(c, RoomDevice(c.DeviceID))
	s.hub.JoinRoom(c, RoomType(c.DeviceType))
	if session := s.reg.CurrentSession(); session != nil {
		s.hub.JoinRoom(c, RoomSession(session.ID))
		for _, teamID := range session.TeamIDs {
			s.hub.JoinRoom(c, RoomTeam(teamID))
		}
	}

	c.Emit(IdentifyAck{DeviceID: c.DeviceID, Reconnection: isReconnection})
	c.Emit(s.BuildSnapshot(c.DeviceID, isReconnection))
	log.Info("sync: full snapshot sent",
		"deviceId", c.DeviceID, "type", string(c.DeviceType), "reconnection", isReconnection)
}

// BuildSnapshot assembles the complete state snapshot for one device:
// the transaction history is sent in full, not a recent window, so a
// reconnecting device can rebuild complete local state.
func (s *Synchronizer) BuildSnapshot(deviceID string, isReconnection bool) model.SyncFull {
	return model.SyncFull{
		Session:      s.reg.CurrentSession(),
		Scores:       s.reg.Scores(),
		Transactions: s.reg.Transactions(),
		VideoStatus:  s.video.CurrentStatus(),
		Devices:      s.reg.Devices(),
		SystemStatus: model.SystemStatus{
			Orchestrator: "online",
			Player:       s.playerStatus(),
		},
		ScannedTokens: s.reg.ScannedTokens(deviceID),
		Reconnection:  isReconnection,
	}
}

func (s *Synchronizer) playerStatus() string {
	if s.player.Connected() {
		return "connected"
	}
	return "disconnected"
}
