package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/maxepunk/ALN-Ecosystem-sub005/core"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Identity is what a connecting device proves about itself before it
// is admitted to any room.
type Identity struct {
	DeviceID   string
	DeviceType model.DeviceType
	Name       string
}

// Authenticator turns a bearer token into a device identity.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// TokenAuthenticator validates HMAC-signed tokens carrying deviceId and
// deviceType claims.
type TokenAuthenticator struct {
	secret []byte
}

func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

func (a *TokenAuthenticator) Authenticate(tokenStr string) (Identity, error) {
	token, err := jwt.Parse([]byte(tokenStr), jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return Identity{}, err
	}
	err = jwt.Validate(token, jwt.WithRequiredClaim("deviceId"), jwt.WithRequiredClaim("deviceType"))
	if err != nil {
		return Identity{}, err
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return Identity{}, err
	}
	id, ok := claims["deviceId"].(string)
	if !ok || id == "" {
		return Identity{}, errors.New("invalid deviceId claim")
	}
	typ, _ := claims["deviceType"].(string)
	deviceType := model.DeviceType(typ)
	if deviceType != model.DeviceGM && deviceType != model.DevicePlayer {
		return Identity{}, errors.New("invalid deviceType claim")
	}
	ident := Identity{DeviceID: id, DeviceType: deviceType}
	ident.Name, _ = claims["name"].(string)
	return ident, nil
}

// Gateway is the websocket entry point: it authenticates connections,
// registers devices, and routes inbound messages to commands and sync.
type Gateway struct {
	hub  *Hub
	svc  *core.Service
	sync *Synchronizer
	auth Authenticator
}

func NewGateway(hub *Hub, svc *core.Service, sync *Synchronizer, auth Authenticator) *Gateway {
	return &Gateway{hub: hub, svc: svc, sync: sync, auth: auth}
}

// admit validates the identity against station capacity and registers
// the device. It returns the registered device and whether this is a
// reconnection of a previously seen device.
func (g *Gateway) admit(ident Identity) (*model.Device, bool, error) {
	if ident.DeviceType == model.DeviceGM && !g.svc.Registry.CanAcceptGMStation() {
		return nil, false, model.ErrGMCapacity
	}
	now := time.Now()
	device, _, isReconnection := g.svc.Registry.UpdateDevice(model.Device{
		ID:            ident.DeviceID,
		Name:          ident.Name,
		Type:          ident.DeviceType,
		Status:        model.DeviceConnected,
		ConnectedAt:   now,
		LastHeartbeat: now,
	})
	return device, isReconnection, nil
}

// depart runs after the read pump has dropped the client from the hub.
func (g *Gateway) depart(c *Client) {
	g.svc.Registry.MarkDisconnected(c.DeviceID)
	log.Info("gateway: device departed", "deviceId", c.DeviceID, "type", c.DeviceType)
}
