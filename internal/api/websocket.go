package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/graystore/internal/checkpoint"
	"github.com/nerrad567/graystore/internal/infrastructure/config"
	"github.com/nerrad567/graystore/internal/infrastructure/logging"
)

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// Event channels.
const (
	ChannelCheckpoint   = "checkpoint.done"
	ChannelReconfigured = "database.reconfigured"
)

const (
	sendQueueSize       = 256
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// Frame is the envelope of every WebSocket message in either direction.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Time    string          `json:"time,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription selects events. An empty Paths list matches every
// database.
type Subscription struct {
	Channels []string `json:"channels"`
	Paths    []string `json:"paths,omitempty"`
}

// checkpointEvent is the payload on ChannelCheckpoint.
type checkpointEvent struct {
	Path       string    `json:"path"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// reconfiguredEvent is the payload on ChannelReconfigured.
type reconfiguredEvent struct {
	Path    string   `json:"path"`
	Configs []string `json:"configs"`
	Error   string   `json:"error,omitempty"`
}

// Hub fans database events out to WebSocket subscribers.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

var _ checkpoint.Notifier = (*Hub)(nil)

// peer is one WebSocket connection and what it asked to receive.
type peer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
	paths    map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is controlled by the bearer token.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		peers:  make(map[*peer]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every peer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// CheckpointDone implements checkpoint.Notifier.
func (h *Hub) CheckpointDone(r checkpoint.Result) {
	ev := checkpointEvent{
		Path:       r.Path,
		Started:    r.Started.UTC(),
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	h.publish(ChannelCheckpoint, r.Path, ev)
}

// Reconfigured tells subscribers that the database at path has a new
// configuration chain, or failed to take one.
func (h *Hub) Reconfigured(path string, configs []string, err error) {
	ev := reconfiguredEvent{Path: path, Configs: configs}
	if err != nil {
		ev.Error = err.Error()
	}
	h.publish(ChannelReconfigured, path, ev)
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// publish sends payload to every peer subscribed to channel and path.
// Slow peers miss events rather than block the checkpoint worker.
func (h *Hub) publish(channel, path string, payload any) {
	data, err := encodeFrame(Frame{Type: FrameEvent, Channel: channel}, payload)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p.wants(channel, path) {
			p.enqueue(data)
		}
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.logger.Debug("websocket peer connected", "peers", n)
}

// remove drops p and closes its queue. Only the call that finds p closes
// the queue.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	n := len(h.peers)
	if ok {
		close(p.send)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("websocket peer disconnected", "peers", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		close(p.send)
		p.conn.Close() //nolint:errcheck // shutdown
		delete(h.peers, p)
	}
}

// encodeFrame stamps f with the current time, sets its payload and
// marshals it.
func encodeFrame(f Frame, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = raw
	}
	f.Time = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(f)
}

// wsTimings returns the ping interval and pong wait, defaulting unset values.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// handleWebSocket upgrades the request and serves the event feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		channels: make(map[string]struct{}),
		paths:    make(map[string]struct{}),
	}
	s.hub.add(p)

	ping, pong := wsTimings(s.hub.cfg)
	go p.writeLoop(ping, pong)
	go p.readLoop(int64(s.hub.cfg.MaxMessageSize), ping+pong)
}

func (p *peer) wants(channel, path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.channels[channel]; !ok {
		return false
	}
	if len(p.paths) == 0 {
		return true
	}
	_, ok := p.paths[path]
	return ok
}

// enqueue queues data unless the peer is too far behind. Callers hold the
// hub read lock, so the queue cannot be closed underneath them.
func (p *peer) enqueue(data []byte) {
	select {
	case p.send <- data:
	default:
	}
}

// reply queues a direct response to the peer.
func (p *peer) reply(f Frame, payload any) {
	data, err := encodeFrame(f, payload)
	if err != nil {
		return
	}
	p.hub.mu.RLock()
	defer p.hub.mu.RUnlock()
	if _, ok := p.hub.peers[p]; ok {
		p.enqueue(data)
	}
}

func (p *peer) fail(id, message string) {
	p.reply(Frame{Type: FrameError, ID: id}, map[string]string{"message": message})
}

func (p *peer) readLoop(limit int64, idle time.Duration) {
	defer func() {
		p.hub.remove(p)
		p.conn.Close() //nolint:errcheck // already finished
	}()

	if limit > 0 {
		p.conn.SetReadLimit(limit)
	}
	extend := func(string) error { return p.conn.SetReadDeadline(time.Now().Add(idle)) }
	extend("") //nolint:errcheck // a failed deadline surfaces on the next read
	p.conn.SetPongHandler(extend)

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // as above
		p.handle(data)
	}
}

func (p *peer) writeLoop(ping, pong time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		p.conn.Close() //nolint:errcheck // already finished
	}()

	for {
		select {
		case data, ok := <-p.send:
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // best effort
				return
			}
			p.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write error caught below
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write error caught below
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *peer) handle(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		p.fail("", "invalid JSON frame")
		return
	}

	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
		var sub Subscription
		if err := json.Unmarshal(f.Payload, &sub); err != nil || len(sub.Channels) == 0 {
			p.fail(f.ID, "invalid "+f.Type+" payload")
			return
		}
		p.update(f.Type == FrameSubscribe, sub)
		p.reply(Frame{Type: FrameAck, ID: f.ID}, p.snapshot())
	case FramePing:
		p.reply(Frame{Type: FramePong, ID: f.ID}, nil)
	default:
		p.fail(f.ID, "unknown frame type: "+f.Type)
	}
}

// update adds or removes the channels and paths in sub.
func (p *peer) update(add bool, sub Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range sub.Channels {
		if add {
			p.channels[ch] = struct{}{}
		} else {
			delete(p.channels, ch)
		}
	}
	for _, path := range sub.Paths {
		if add {
			p.paths[path] = struct{}{}
		} else {
			delete(p.paths, path)
		}
	}
}

// snapshot returns the peer's current subscription, sorted.
func (p *peer) snapshot() Subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sub := Subscription{Channels: make([]string, 0, len(p.channels))}
	for ch := range p.channels {
		sub.Channels = append(sub.Channels, ch)
	}
	for path := range p.paths {
		sub.Paths = append(sub.Paths, path)
	}
	slices.Sort(sub.Channels)
	slices.Sort(sub.Paths)
	return sub
}
