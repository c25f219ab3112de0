package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/transitbeacon/beacon/device/internal/api"
	"github.com/transitbeacon/beacon/device/internal/display"
)

// EventFrame tags messages carrying a rendered panel frame.
const EventFrame = "frame"

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingEvery  = pongWait * 9 / 10
	queueDepth = 8
	maxInbound = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  256,
	WriteBufferSize: 1024,
	// The panel mirror is a LAN diagnostic; any origin may watch it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the JSON envelope pushed to watchers.
type Message struct {
	Event string            `json:"event"`
	Data  api.FrameResponse `json:"data"`
}

// Hub mirrors the physical panel to WebSocket watchers. A watcher gets the
// current frame as soon as it connects and then one frame per interval.
type Hub struct {
	renderer *display.Renderer
	interval time.Duration

	mu    sync.Mutex
	peers map[*peer]struct{}
}

// New returns a Hub publishing rend's last frame every interval.
func New(rend *display.Renderer, interval time.Duration) *Hub {
	return &Hub{
		renderer: rend,
		interval: interval,
		peers:    make(map[*peer]struct{}),
	}
}

// Run publishes frames until ctx is cancelled, then disconnects every
// watcher.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-t.C:
			h.publish()
		}
	}
}

// ServeHTTP upgrades the request and serves one watcher until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}

	p := &peer{conn: conn, out: make(chan []byte, queueDepth)}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: watcher connected", "remote", r.RemoteAddr)

	if msg, err := h.encode(); err == nil {
		p.offer(msg)
	}

	go p.writeLoop()
	p.readLoop()

	h.drop(p)
	slog.Debug("ws: watcher disconnected", "remote", r.RemoteAddr)
}

// Count returns the number of connected watchers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) publish() {
	msg, err := h.encode()
	if err != nil {
		slog.Error("ws: encode frame", "err", err)
		return
	}

	var lagging []*peer
	h.mu.Lock()
	for p := range h.peers {
		if !p.offer(msg) {
			lagging = append(lagging, p)
		}
	}
	h.mu.Unlock()

	for _, p := range lagging {
		slog.Warn("ws: watcher too slow, disconnecting")
		h.drop(p)
	}
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{
		Event: EventFrame,
		Data:  api.BuildFrame(h.renderer, time.Now()),
	})
}

// drop forgets p and stops its writer. Safe to call more than once.
func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	p.stop()
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[*peer]struct{})
	h.mu.Unlock()

	for _, p := range peers {
		p.stop()
	}
}

// peer is one connected watcher. out is closed exactly once, by stop.
type peer struct {
	conn *websocket.Conn
	out  chan []byte

	mu      sync.Mutex
	stopped bool
}

// offer queues msg without blocking. It reports false if the queue is full.
func (p *peer) offer(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return true
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.out)
	}
}

// writeLoop is the connection's only writer.
func (p *peer) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.out:
			if !ok {
				p.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames; it exists to process pongs and notice
// when the watcher leaves.
func (p *peer) readLoop() {
	p.conn.SetReadLimit(maxInbound)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.NextReader(); err != nil {
			return
		}
	}
}
