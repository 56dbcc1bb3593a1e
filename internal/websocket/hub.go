// Package websocket streams Evidence Processor stage progress to clients
// over GET /api/evidence/{id}/progress (SPEC_FULL.md §6's additive
// progress route), adapted from the teacher's internal/websocket.Hub
// client-registry/broadcast pattern onto per-evidence-id rooms fed by the
// Event Bus rather than the teacher's org-scoped session broadcasts.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one open progress-stream connection, scoped to a single
// evidence id for its lifetime.
type client struct {
	conn *gorilla.Conn
	send chan []byte
}

// Hub fans Event Bus stage-progress events out to clients subscribed to
// the evidence id they name, mirroring the teacher's Hub.clients
// registry but keyed by evidence id instead of broadcasting to everyone.
type Hub struct {
	bus events.Bus

	mu      sync.RWMutex
	clients map[string]map[*client]bool

	unsubTranscription events.Unsubscribe
	unsubOCR           events.Unsubscribe
}

// NewHub builds a Hub and subscribes it to the stage-progress subjects.
func NewHub(bus events.Bus) (*Hub, error) {
	h := &Hub{bus: bus, clients: make(map[string]map[*client]bool)}

	unsubT, err := bus.Subscribe(events.SubjectStageTranscriptionProgress, h.relay("transcription"))
	if err != nil {
		return nil, err
	}
	unsubO, err := bus.Subscribe(events.SubjectStageOCRProgress, h.relay("ocr"))
	if err != nil {
		unsubT()
		return nil, err
	}

	h.unsubTranscription = unsubT
	h.unsubOCR = unsubO
	return h, nil
}

// Close detaches the hub from the Event Bus and drops every connected
// client's send channel.
func (h *Hub) Close() {
	if h.unsubTranscription != nil {
		h.unsubTranscription()
	}
	if h.unsubOCR != nil {
		h.unsubOCR()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.clients {
		for c := range room {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]bool)
}

// relay decodes a StageProgressEvent's raw JSON payload and forwards it
// verbatim to every client subscribed to its evidence id.
func (h *Hub) relay(stage string) events.Handler {
	return func(ctx context.Context, data []byte) {
		evidenceID := extractEvidenceID(data)
		if evidenceID == "" {
			return
		}
		h.broadcast(evidenceID, data)
	}
}

func (h *Hub) broadcast(evidenceID string, message []byte) {
	h.mu.RLock()
	room := h.clients[evidenceID]
	stale := make([]*client, 0)
	for c := range room {
		select {
		case c.send <- message:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range stale {
		delete(h.clients[evidenceID], c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) register(evidenceID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[evidenceID] == nil {
		h.clients[evidenceID] = make(map[*client]bool)
	}
	h.clients[evidenceID][c] = true
}

func (h *Hub) unregister(evidenceID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.clients[evidenceID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
		}
	}
}

// RegisterRoutes mounts GET /:id/progress, implementing
// api.ProgressHandler.
func (h *Hub) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/progress", h.Serve)
}

// Serve upgrades the request to a WebSocket and streams stage-progress
// events for the named evidence id until the client disconnects.
func (h *Hub) Serve(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)
	if principal == nil || !principal.Active {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	evidenceID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WebSocket().Error().Err(err).Msg("progress websocket upgrade failed")
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, 64)}
	h.register(evidenceID, cl)

	go cl.writePump()
	cl.readPump(h, evidenceID)
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(gorilla.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gorilla.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains and discards inbound frames (this route is
// server-to-client only) until the connection closes, then unregisters.
func (c *client) readPump(h *Hub, evidenceID string) {
	defer func() {
		h.unregister(evidenceID, c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// extractEvidenceID reads just the evidence_id field out of a marshaled
// StageProgressEvent without committing this package to the events
// package's full event type.
func extractEvidenceID(data []byte) string {
	var partial struct {
		EvidenceID string `json:"evidence_id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return ""
	}
	return partial.EvidenceID
}
