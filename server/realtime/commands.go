package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Command is the GM command envelope: one action, one payload, and in
// response exactly one acknowledgment.
type Command struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleMessage dispatches one inbound websocket message.
func (g *Gateway) handleMessage(c *Client, msg InboundMessage) {
	switch msg.Event {
	case "heartbeat":
		g.svc.Registry.Heartbeat(c.DeviceID)
	case "sync:request":
		c.Emit(g.sync.BuildSnapshot(c.DeviceID, true))
	case "gm:command":
		if c.DeviceType != model.DeviceGM {
			c.Emit(model.ErrorEvent{Code: "forbidden", Message: "commands require a gm station"})
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.Emit(model.ErrorEvent{Code: "validation", Message: "malformed command"})
			return
		}
		g.handleCommand(c, cmd)
	default:
		log.Debug("gateway: unknown inbound event", "event", msg.Event, "deviceId", c.DeviceID)
	}
}

// handleCommand executes one GM command and emits its ack.
func (g *Gateway) handleCommand(c *Client, cmd Command) {
	err := g.runCommand(c, cmd)
	ack := CommandAck{Action: cmd.Action, Success: err == nil}
	if err != nil {
		ack.Message = err.Error()
		log.Warn("gateway: command failed", "action", cmd.Action, "deviceId", c.DeviceID, err)
	}
	c.Emit(ack)
}

func (g *Gateway) runCommand(c *Client, cmd Command) error {
	switch cmd.Action {
	case "session:create":
		var p struct {
			Name  string   `json:"name"`
			Teams []string `json:"teams"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		_, err := g.svc.CreateSession(p.Name, p.Teams)
		return err

	case "session:update":
		var p struct {
			Name   *string `json:"name"`
			Status *string `json:"status"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		var status *model.SessionStatus
		if p.Status != nil {
			s := model.SessionStatus(*p.Status)
			if s != model.SessionActive && s != model.SessionPaused {
				return model.ErrValidation
			}
			status = &s
		}
		if p.Name == nil && status == nil {
			return model.ErrValidation
		}
		return g.svc.Registry.UpdateSession(p.Name, status)

	case "session:pause":
		return g.svc.Registry.SetSessionStatus(model.SessionPaused)

	case "session:resume":
		return g.svc.ResumeSession()

	case "session:end":
		return g.svc.Registry.EndSession()

	case "score:adjust":
		var p struct {
			TeamID string `json:"teamId"`
			Delta  int    `json:"delta"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		if p.TeamID == "" {
			return model.ErrValidation
		}
		return g.svc.Registry.AdjustScore(p.TeamID, p.Delta)

	case "score:reset":
		g.svc.Registry.ResetScores()
		return nil

	case "transaction:create":
		var req model.ScanRequest
		if err := decode(cmd.Payload, &req); err != nil {
			return err
		}
		resp := g.svc.SubmitScan(req)
		if resp.Status == model.ScanRejected {
			return errors.New(resp.Message)
		}
		return nil

	case "transaction:delete":
		var p struct {
			TransactionID string `json:"transactionId"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		return g.svc.Registry.DeleteTransaction(p.TransactionID)

	case "video:play":
		g.svc.Video.ResumeCurrent()
		return nil

	case "video:pause":
		g.svc.Video.PauseCurrent()
		return nil

	case "video:stop", "video:skip":
		g.svc.Video.SkipCurrent()
		return nil

	case "video:queue:add":
		var p struct {
			TokenID   string `json:"tokenId"`
			VideoPath string `json:"videoPath"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		token, ok := g.svc.Catalog.Get(p.TokenID)
		if !ok {
			if p.VideoPath == "" {
				return model.ErrUnknownToken
			}
			// Manual file enqueue by an admin.
			token = &model.Token{ID: p.TokenID, HasVideo: true, VideoPath: p.VideoPath}
		}
		_, err := g.svc.Video.Enqueue(token, c.DeviceID)
		return err

	case "video:queue:reorder":
		var p struct {
			From int `json:"from"`
			To   int `json:"to"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		return g.svc.Video.Reorder(p.From, p.To)

	case "video:queue:clear":
		g.svc.Video.ClearQueue()
		return nil

	case "display:mode":
		var p DisplayMode
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		if p.Mode == "" {
			return model.ErrValidation
		}
		g.hub.EmitToRoom(RoomType(model.DevicePlayer), p)
		return nil

	case "system:offline":
		var p struct {
			Offline *bool `json:"offline"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return err
		}
		if p.Offline == nil {
			return model.ErrValidation
		}
		g.svc.SetOffline(*p.Offline)
		return nil

	case "system:reset":
		return g.svc.SystemReset()

	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return model.ErrValidation
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s", model.ErrValidation, err.Error())
	}
	return nil
}
