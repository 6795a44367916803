// Package stream feeds chunk streaming deltas to websocket clients and takes
// the tracked player's position from them.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/drifter/server/internal/world"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	maxMessage   = 4096
)

// WorldInfo is sent to every client on connect.
type WorldInfo struct {
	Seed        int64   `json:"seed"`
	ChunkWidth  int     `json:"chunk_width"`
	ChunkHeight int     `json:"chunk_height"`
	BlockSize   float64 `json:"block_size"`
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string `json:"type"`

	// pose
	X *float64 `json:"x,omitempty"`

	// hello
	World *WorldInfo `json:"world,omitempty"`

	// delta
	Center    *int  `json:"center,omitempty"`
	Scheduled []int `json:"scheduled,omitempty"`
	Evicted   []int `json:"evicted,omitempty"`
	Loaded    []int `json:"loaded,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// StatsFunc reports manager state for /healthz.
type StatsFunc func() world.Stats

// Options configure a Hub.
type Options struct {
	WriteTimeout time.Duration
	SendQueue    int
}

// Hub tracks connected clients and the latest reported player position.
type Hub struct {
	info     WorldInfo
	stats    StatsFunc
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	poseX   float64
	hasPose bool
}

func NewHub(info WorldInfo, stats StatsFunc, opts Options, log *zap.Logger) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.SendQueue < 1 {
		opts.SendQueue = 64
	}
	return &Hub{
		info:  info,
		stats: stats,
		opts:  opts,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler serves /ws and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", h.serveHealth)
	return mux
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (h *Hub) serveHealth(w http.ResponseWriter, _ *http.Request) {
	var s world.Stats
	if h.stats != nil {
		s = h.stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string      `json:"status"`
		Clients int         `json:"clients"`
		Chunks  world.Stats `json:"chunks"`
	}{"ok", h.ClientCount(), s})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, h.opts.SendQueue)}
	info := h.info
	c.enqueue(encode(Message{Type: "hello", World: &info}))
	h.register(c)
	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("stream client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("stream client disconnected", zap.Int("clients", n))
}

// PlayerX returns the last pose any client reported.
func (h *Hub) PlayerX() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.poseX, h.hasPose
}

func (h *Hub) setPose(x float64) {
	h.mu.Lock()
	h.poseX = x
	h.hasPose = true
	h.mu.Unlock()
}

// Publish broadcasts a streaming delta to every client. Clients whose queue
// is full are dropped.
func (h *Hub) Publish(res world.UpdateResult, loaded []int) {
	center := res.Center
	msg := encode(Message{
		Type:      "delta",
		Center:    &center,
		Scheduled: res.Scheduled,
		Evicted:   res.Evicted,
		Loaded:    loaded,
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("stream client too slow, dropped", zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func encode(m Message) []byte {
	b, _ := json.Marshal(m)
	return b
}
