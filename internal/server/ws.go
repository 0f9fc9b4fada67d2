package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spacefeed/spacefeed/internal/job"
	"github.com/spacefeed/spacefeed/internal/models"
)

const writeTimeout = 5 * time.Second

// Hub pushes job progress to websocket subscribers. Notifications are
// dropped, not queued, when a subscriber can't keep up: each push carries the
// full current state, so missing one loses nothing.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]chan job.Snapshot
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*websocket.Conn]chan job.Snapshot),
	}
}

// Notify fans a snapshot out to every subscriber without blocking the run
// loop.
func (h *Hub) Notify(snap job.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Handle upgrades the request and streams progress events until the client
// disconnects.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan job.Snapshot, 1)
	h.mu.Lock()
	h.subs[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subs, conn)
		h.mu.Unlock()
	}()

	h.logger.Debug("stats subscriber connected", "remote", r.RemoteAddr)

	// Read pump: the client never sends data, but reading is what processes
	// close/ping control frames and notices dropped connections, so the
	// subscriber is cleaned up without waiting for the next write to fail.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(progressEvent(snap)); err != nil {
				h.logger.Debug("stats subscriber gone", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-closed:
			h.logger.Debug("stats subscriber disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func progressEvent(snap job.Snapshot) models.ProgressEvent {
	return models.ProgressEvent{
		State:      snap.State.String(),
		Inserted:   snap.Inserted,
		Total:      snap.Total,
		Progress:   models.FormatProgress(snap.Inserted, snap.Total),
		JobRunning: snap.State != job.StateIdle,
	}
}
