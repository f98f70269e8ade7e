package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// authTimeout bounds how long a connection may sit unauthenticated. Without
// this, an idle socket that never sends the auth frame would pin a goroutine
// indefinitely.
const authTimeout = 10 * time.Second

// Socket is the transport a client connection rides on. *websocket.Conn is
// adapted via WrapConn; tests substitute in-memory fakes.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// wsSocket adapts *websocket.Conn to Socket.
type wsSocket struct {
	conn *websocket.Conn
}

// WrapConn adapts a coder/websocket connection for the manager.
func WrapConn(conn *websocket.Conn) Socket {
	return &wsSocket{conn: conn}
}

func (s *wsSocket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

func (s *wsSocket) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close(code int, reason string) error {
	return s.conn.Close(websocket.StatusCode(code), reason)
}

// Client is one authenticated connection.
//
// subscriptions is guarded by subsMu: the owning read loop mutates it while
// broadcast goroutines filter on it. writeMu serializes socket writes so
// per-client frame ordering is preserved across concurrent broadcasts.
type Client struct {
	ID     string
	UserID string

	sock    Socket
	limiter *rate.Limiter

	subsMu        sync.RWMutex
	subscriptions map[string]bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *Client) subscribedTo(key string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[key]
}

func (c *Client) setSubscription(key string, on bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if on {
		c.subscriptions[key] = true
	} else {
		delete(c.subscriptions, key)
	}
}

func (c *Client) subscriptionList() []string {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	keys := make([]string, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		keys = append(keys, k)
	}
	return keys
}

// ManagerOptions tunes the channel manager.
type ManagerOptions struct {
	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// RateMessages inbound frames are allowed per RateWindow per client;
	// excess frames are answered with an error frame and dropped.
	RateMessages int
	RateWindow   time.Duration

	// AutoSubscribe is the channel set new clients join on connect.
	AutoSubscribe []string
}

// DefaultManagerOptions allows 30 inbound frames per 60s and auto-subscribes
// every non-room channel.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		WriteTimeout:  5 * time.Second,
		RateMessages:  30,
		RateWindow:    60 * time.Second,
		AutoSubscribe: []string{ChannelEvents, ChannelStatus, ChannelNotifications, ChannelQueue},
	}
}

// ChannelManager fans domain events out to subscribed clients. One instance
// per process.
type ChannelManager struct {
	mu      sync.RWMutex
	clients map[string]*Client

	bus      *Bus
	busSubID int // 0 while the bus is not bridged

	verifier TokenVerifier
	opts     ManagerOptions
	logger   *slog.Logger
}

// NewChannelManager creates a manager bridging the given bus.
func NewChannelManager(bus *Bus, verifier TokenVerifier, opts ManagerOptions, logger *slog.Logger) *ChannelManager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultManagerOptions().WriteTimeout
	}
	if opts.RateMessages <= 0 || opts.RateWindow <= 0 {
		def := DefaultManagerOptions()
		opts.RateMessages = def.RateMessages
		opts.RateWindow = def.RateWindow
	}
	return &ChannelManager{
		clients:  make(map[string]*Client),
		bus:      bus,
		verifier: verifier,
		opts:     opts,
		logger:   logger.With("component", "channel_manager"),
	}
}

// ClientCount returns the number of connected clients.
func (m *ChannelManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// HandleConnection owns one socket from auth to close. Blocks until the
// connection ends. The first inbound frame must be an auth frame; anything
// else closes the socket with StatusAuthFailure.
func (m *ChannelManager) HandleConnection(parentCtx context.Context, sock Socket) {
	userID, err := m.authenticate(parentCtx, sock)
	if err != nil {
		m.logger.Warn("websocket auth failed", "error", err)
		_ = sock.Close(StatusAuthFailure, "authentication failed")
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	c := &Client{
		ID:            uuid.New().String(),
		UserID:        userID,
		sock:          sock,
		limiter:       rate.NewLimiter(rate.Limit(float64(m.opts.RateMessages)/m.opts.RateWindow.Seconds()), m.opts.RateMessages),
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, ch := range m.opts.AutoSubscribe {
		if KnownChannel(ch) {
			c.setSubscription(channelKey(ch, ""), true)
		}
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]any{
		"type": FrameAuthenticated,
		"user": userID,
	})
	m.sendJSON(c, map[string]any{
		"type":          FrameConnected,
		"channel":       ChannelEvents,
		"subscriptions": c.subscriptionList(),
	})

	m.readLoop(ctx, c)
}

// authenticate reads and verifies the mandatory first frame.
func (m *ChannelManager) authenticate(parentCtx context.Context, sock Socket) (string, error) {
	ctx, cancel := context.WithTimeout(parentCtx, authTimeout)
	defer cancel()

	data, err := sock.Read(ctx)
	if err != nil {
		return "", err
	}
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", err
	}
	if frame.Type != FrameAuth {
		return "", ErrUnauthorized
	}
	return m.verifier.Verify(frame.Token)
}

// readLoop processes inbound frames until the connection closes.
func (m *ChannelManager) readLoop(ctx context.Context, c *Client) {
	for {
		data, err := c.sock.Read(ctx)
		if err != nil {
			return
		}

		if !c.limiter.Allow() {
			m.sendJSON(c, map[string]any{
				"type":    FrameError,
				"message": "rate limit exceeded",
			})
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.sendJSON(c, map[string]any{
				"type":    FrameError,
				"message": "invalid frame",
			})
			continue
		}
		m.handleFrame(c, &frame)
	}
}

// handleFrame dispatches one authenticated inbound frame.
func (m *ChannelManager) handleFrame(c *Client, frame *ClientFrame) {
	switch frame.Type {
	case FramePing:
		m.sendJSON(c, map[string]any{"type": FramePong})

	case FrameSubscribe:
		ok := KnownChannel(frame.Channel)
		if ok {
			c.setSubscription(channelKey(frame.Channel, frame.RoomID), true)
		}
		m.sendJSON(c, subscriptionEcho(FrameSubscribed, frame, ok))

	case FrameUnsubscribe:
		ok := KnownChannel(frame.Channel)
		if ok {
			c.setSubscription(channelKey(frame.Channel, frame.RoomID), false)
		}
		m.sendJSON(c, subscriptionEcho(FrameUnsubscribed, frame, ok))

	case FrameAuth:
		// Already authenticated; a second auth frame is harmless noise.
		m.sendJSON(c, map[string]any{"type": FrameAuthenticated, "user": c.UserID})

	default:
		m.logger.Debug("ignoring unknown frame type",
			"client_id", c.ID, "frame_type", frame.Type)
	}
}

func subscriptionEcho(frameType string, frame *ClientFrame, success bool) map[string]any {
	echo := map[string]any{
		"type":    frameType,
		"channel": frame.Channel,
		"success": success,
	}
	if frame.RoomID != "" {
		echo["room_id"] = frame.RoomID
	}
	return echo
}

// register adds the client; the first client bridges the bus onto the events
// channel.
func (m *ChannelManager) register(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c.ID] = c
	if len(m.clients) == 1 && m.bus != nil && m.busSubID == 0 {
		m.busSubID = m.bus.Subscribe(m.bridgeBusEvent)
		m.logger.Info("bridged event bus to events channel")
	}
}

// unregister removes the client; the last client unbridges the bus.
func (m *ChannelManager) unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	unbridge := len(m.clients) == 0 && m.busSubID != 0
	subID := m.busSubID
	if unbridge {
		m.busSubID = 0
	}
	m.mu.Unlock()

	if unbridge {
		m.bus.Unsubscribe(subID)
		m.logger.Info("unbridged event bus")
	}

	c.cancel()
	_ = c.sock.Close(int(websocket.StatusNormalClosure), "")
}

// bridgeBusEvent forwards one bus event to the events channel.
func (m *ChannelManager) bridgeBusEvent(ev BusEvent) {
	frame := make(map[string]any, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		frame[k] = v
	}
	frame["type"] = ev.Type
	m.BroadcastToChannel(ChannelEvents, "", frame)
}

// BroadcastToChannel sends the message to every client subscribed to the
// channel (and room, when set), excluding the listed client ids. The payload
// is augmented with channel, room_id, and a server timestamp, serialized
// once, and fanned out in parallel. Clients whose write fails are
// disconnected.
func (m *ChannelManager) BroadcastToChannel(channel, roomID string, message map[string]any, exclude ...string) {
	data, err := marshalAugmented(message, channel, roomID)
	if err != nil {
		m.logger.Error("failed to marshal broadcast", "channel", channel, "error", err)
		return
	}

	key := channelKey(channel, roomID)
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	// Snapshot under the lock; filter and send outside it.
	targets := m.snapshot(func(c *Client) bool {
		return !excluded[c.ID] && c.subscribedTo(key)
	})
	m.fanOut(targets, data)
}

// BroadcastToUser sends the message to every connection of one user. When a
// channel is given the payload is tagged with it; subscription state is not
// consulted — user-directed messages always land.
func (m *ChannelManager) BroadcastToUser(userID string, message map[string]any, channel string) {
	data, err := marshalAugmented(message, channel, "")
	if err != nil {
		m.logger.Error("failed to marshal user broadcast", "user_id", userID, "error", err)
		return
	}

	targets := m.snapshot(func(c *Client) bool {
		return c.UserID == userID
	})
	m.fanOut(targets, data)
}

// snapshot collects the clients passing the filter. The client map is copied
// under the read lock; the filter runs on the copy.
func (m *ChannelManager) snapshot(keep func(*Client) bool) []*Client {
	m.mu.RLock()
	all := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		all = append(all, c)
	}
	m.mu.RUnlock()

	targets := all[:0]
	for _, c := range all {
		if keep(c) {
			targets = append(targets, c)
		}
	}
	return targets
}

// fanOut writes the serialized frame to every target in parallel and
// disconnects exactly the clients whose write failed.
func (m *ChannelManager) fanOut(targets []*Client, data []byte) {
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*Client

	for _, c := range targets {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := m.sendRaw(c, data); err != nil {
				m.logger.Warn("failed to send to client",
					"client_id", c.ID, "error", err)
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, c := range failed {
		m.disconnect(c)
	}
}

// disconnect force-removes one client after a write failure.
func (m *ChannelManager) disconnect(c *Client) {
	m.mu.RLock()
	_, present := m.clients[c.ID]
	m.mu.RUnlock()
	if !present {
		return
	}
	m.unregister(c)
}

// marshalAugmented copies the message, adds channel/room_id/timestamp, and
// serializes it once for the whole fan-out.
func marshalAugmented(message map[string]any, channel, roomID string) ([]byte, error) {
	augmented := make(map[string]any, len(message)+3)
	for k, v := range message {
		augmented[k] = v
	}
	if channel != "" {
		augmented["channel"] = channel
	}
	if roomID != "" {
		augmented["room_id"] = roomID
	}
	augmented["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(augmented)
}

// sendJSON marshals and sends one frame to a single client.
func (m *ChannelManager) sendJSON(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("failed to marshal frame", "client_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		m.logger.Warn("failed to send frame", "client_id", c.ID, "error", err)
	}
}

// sendRaw writes bytes to one client under its write mutex with the configured
// timeout.
func (m *ChannelManager) sendRaw(c *Client, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(c.ctx, m.opts.WriteTimeout)
	defer cancel()
	return c.sock.Write(writeCtx, data)
}
