package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultReadLimit  = 64 * 1024
	defaultSendBuffer = 64
)

// ListenerOptions configures the WebSocket listener.
type ListenerOptions struct {
	Logger *logger.Logger
	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

// Listener accepts WebSocket clients and bridges them to a Hub. Every
// accepted socket gets a read pump feeding the hub and a write pump draining
// the connection's send queue.
type Listener struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	readLimit  int64
	sendBuffer int

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	server *http.Server
}

// NewListener creates a Listener for hub.
func NewListener(hub *Hub, opts ListenerOptions) *Listener {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("WS")
	}
	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	return &Listener{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native apps on the LAN, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     log,
		readLimit:  readLimit,
		sendBuffer: sendBuffer,
		conns:      make(map[*wsConn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the socket with the hub.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	wc := newWSConn(ws, l.sendBuffer)
	id, err := l.hub.Connect(wc, ConnMeta{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		l.logger.Warn("Rejecting connection from %s: %v", r.RemoteAddr, err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	l.track(wc)
	go wc.writePump(l.logger)
	go l.readPump(id, wc)
}

// ListenAndServe serves WebSocket upgrades on addr until Shutdown.
func (l *Listener) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return l.Serve(ln)
}

// Serve accepts upgrades on ln until Shutdown.
func (l *Listener) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.mu.Lock()
	l.server = srv
	l.mu.Unlock()

	l.logger.Info("WebSocket listener on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting sockets and closes the ones still open.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	conns := make([]*wsConn, 0, len(l.conns))
	for wc := range l.conns {
		conns = append(conns, wc)
	}
	l.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, wc := range conns {
		wc.Close()
	}
	return err
}

func (l *Listener) track(wc *wsConn) {
	l.mu.Lock()
	l.conns[wc] = struct{}{}
	l.mu.Unlock()
}

func (l *Listener) untrack(wc *wsConn) {
	l.mu.Lock()
	delete(l.conns, wc)
	l.mu.Unlock()
}

// readPump feeds inbound frames to the hub. It owns all reads on the socket
// and always ends by queuing a disconnect for the connection.
func (l *Listener) readPump(id string, wc *wsConn) {
	defer l.untrack(wc)

	ws := wc.ws
	ws.SetReadLimit(l.readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var cause error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !wc.isClosed() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cause = err
			}
			break
		}
		if err := l.hub.Deliver(id, data); err != nil {
			break
		}
	}

	_ = l.hub.Disconnect(id, cause)
	wc.Close()
}

// wsConn is the Sink side of one socket.
type wsConn struct {
	ws        *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Send queues data without blocking.
func (c *wsConn) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush and close the socket.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// writePump owns all writes on the socket.
func (c *wsConn) writePump(log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Debug("Write failed: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug("Ping failed: %v", err)
				c.Close()
				return
			}
		case <-c.closed:
			c.flush()
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued before the close frame.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
