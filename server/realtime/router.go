package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deluan/rest"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/maxepunk/ALN-Ecosystem-sub005/core"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Repositories provides per-request repository constructors for the
// read-only admin resources.
type Repositories struct {
	Sessions     func(ctx context.Context) model.SessionRepository
	Transactions func(ctx context.Context) model.TransactionRepository
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // scanners and displays connect from their own origins
	},
}

// Router exposes the websocket endpoint and the HTTP scan API.
type Router struct {
	http.Handler
	gateway *Gateway
	svc     *core.Service
	sync    *Synchronizer
	repos   *Repositories
}

func NewRouter(gateway *Gateway, svc *core.Service, sync *Synchronizer, repos *Repositories) *Router {
	r := &Router{gateway: gateway, svc: svc, sync: sync, repos: repos}
	r.Handler = r.routes()
	return r
}

func (rt *Router) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", rt.handleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", rt.handleScan)
		r.Post("/scan/batch", rt.handleScanBatch)
		r.Get("/session", rt.handleSession)
		r.Get("/status", rt.handleStatus)
		if rt.repos != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/sessions", rt.handleAdminList(func(ctx context.Context) rest.Repository {
					return rt.repos.Sessions(ctx).(rest.Repository)
				}))
				r.Get("/transactions", rt.handleAdminList(func(ctx context.Context) rest.Repository {
					return rt.repos.Transactions(ctx).(rest.Repository)
				}))
			})
		}
	})

	return r
}

// handleAdminList serves an entire resource collection from its
// repository.
func (rt *Router) handleAdminList(newRepo func(ctx context.Context) rest.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := newRepo(r.Context())
		data, err := repo.ReadAll()
		if err != nil {
			log.Error(r.Context(), "router: listing admin resource", "resource", repo.EntityName(), err)
			http.Error(w, "error listing resource", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	ident, err := rt.gateway.auth.Authenticate(tokenStr)
	if err != nil {
		log.Warn("router: rejected websocket token", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	device, isReconnection, err := rt.gateway.admit(ident)
	if err != nil {
		if errors.Is(err, model.ErrGMCapacity) {
			http.Error(w, "gm station capacity reached", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "connection refused", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(r.Context(), "router: websocket upgrade failed", err)
		rt.svc.Registry.MarkDisconnected(device.ID)
		return
	}

	client := rt.gateway.hub.NewClient(conn, device.ID, device.Type,
		rt.gateway.handleMessage,
		rt.gateway.depart,
		func(c *Client) { rt.svc.Registry.Heartbeat(c.DeviceID) },
	)

	rt.sync.OnIdentified(client, isReconnection)

	go client.WritePump()
	client.ReadPump() // blocks until disconnect
}

// handleScan accepts a single scan over HTTP for devices without a live
// websocket.
func (rt *Router) handleScan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := rt.svc.SubmitScan(req)
	w.Header().Set("Content-Type", "application/json")
	switch resp.Status {
	case model.ScanQueued:
		w.WriteHeader(http.StatusAccepted)
	case model.ScanRejected:
		w.WriteHeader(http.StatusConflict)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleScanBatch replays a batch of scans collected while the device
// was offline. Replaying the same batch id returns the original ack.
func (rt *Router) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var batch model.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := batch.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ack, err := rt.svc.SubmitBatch(batch)
	if err != nil {
		log.Error(r.Context(), "router: processing scan batch", "batchId", batch.BatchID, err)
		http.Error(w, "error processing batch", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ack)
}

func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request) {
	session := rt.svc.Registry.CurrentSession()
	if session == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(session)
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"orchestrator": "online",
		"player":       rt.sync.playerStatus(),
		"video":        rt.sync.video.CurrentStatus(),
		"offline":      rt.svc.OfflineMode(),
		"offlineQueue": rt.svc.Offline.Size(),
		"devices":      len(rt.svc.Registry.Devices()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
