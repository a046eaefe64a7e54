package devserver

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

// Message is one live-reload event as sent to browsers.
type Message struct {
	Kind  events.ReloadKind `json:"kind"`
	Files []string          `json:"files,omitempty"`
}

// Hub fans live-reload messages out to Server-Sent Events clients. Clients
// that cannot keep up are dropped; their EventSource reconnects.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	clients   map[int]*client
	recorder  metrics.Recorder
	closed    bool
	heartbeat time.Duration
}

type client struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

// NewHub returns an empty hub. A nil recorder disables metrics.
func NewHub(rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Hub{clients: map[int]*client{}, recorder: rec, heartbeat: 30 * time.Second}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan []byte, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(n)
	defer h.remove(c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	flush := func() bool {
		if err := bw.Flush(); err != nil {
			slog.Debug("Live reload write failed", logfields.Error(err))
			return false
		}
		flusher.Flush()
		return true
	}
	_, _ = bw.WriteString(": connected\n\n")
	if !flush() {
		return
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			_, _ = bw.WriteString(": ping\n\n")
			if !flush() {
				return
			}
		case payload := <-c.ch:
			_, _ = bw.WriteString("data: ")
			_, _ = bw.Write(payload)
			_, _ = bw.WriteString("\n\n")
			if !flush() {
				return
			}
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(n)
	}
}

// Broadcast sends msg to every connected client.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Live reload message encoding failed", logfields.Error(err))
		return
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- payload:
		default:
			dropped++
			h.remove(c.id)
		}
	}
	h.recorder.IncLiveReloadBroadcast(string(msg.Kind))
	slog.Debug("Live reload broadcast",
		logfields.Kind(string(msg.Kind)),
		slog.Int("clients", len(snapshot)),
		slog.Int("dropped", dropped))
}

// Shutdown disconnects all clients and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}
