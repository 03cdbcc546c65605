package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
)

// ErrClientClosed is returned by Client methods after Close.
var ErrClientClosed = errors.New("signaling client closed")

// MessageHandler handles one inbound message of a registered type.
type MessageHandler func(ctx context.Context, msg *Message) error

// Client is a signaling client for the MirrorCast protocol. Messages with a
// registered handler are dispatched to it; everything else is queued for
// Next.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	writeMu   sync.Mutex

	messageHandlers map[string]MessageHandler
	handlerMutex    sync.RWMutex

	inbox     chan *Message
	done      chan struct{}
	readErr   error
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	logger *logger.Logger
}

// NewClient creates a client for serverURL. http:// and https:// are
// rewritten to ws:// and wss://.
func NewClient(serverURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		serverURL:       serverURL,
		messageHandlers: make(map[string]MessageHandler),
		inbox:           make(chan *Message, 64),
		done:            make(chan struct{}),
		logger:          log,
	}
}

// Connect dials the server and starts the reader.
func (c *Client) Connect(ctx context.Context) error {
	wsURL := c.serverURL
	if after, ok := strings.CutPrefix(wsURL, "http://"); ok {
		wsURL = "ws://" + after
	} else if after, ok := strings.CutPrefix(wsURL, "https://"); ok {
		wsURL = "wss://" + after
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.logger.Debug("Connected to %s", wsURL)
	go c.readMessages()
	return nil
}

func (c *Client) readMessages() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to unmarshal message: %v", err)
			continue
		}

		c.handlerMutex.RLock()
		handler, exists := c.messageHandlers[msg.Type]
		c.handlerMutex.RUnlock()

		if exists {
			if err := handler(c.ctx, &msg); err != nil {
				c.logger.Warn("Handler error for %s: %v", msg.Type, err)
			}
			continue
		}

		select {
		case c.inbox <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// SetMessageHandler routes messages of msgType to handler instead of Next.
func (c *Client) SetMessageHandler(msgType string, handler MessageHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.messageHandlers[msgType] = handler
}

// Next returns the next unhandled message.
func (c *Client) Next(ctx context.Context) (*Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// drain anything read before the socket went away
		select {
		case msg := <-c.inbox:
			return msg, nil
		default:
		}
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, ErrClientClosed
	}
}

// Send writes msg to the server.
func (c *Client) Send(msg Message) error {
	if c.conn == nil {
		return fmt.Errorf("not connected to signaling server")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendRaw writes an arbitrary text frame.
func (c *Client) SendRaw(data []byte) error {
	if c.conn == nil {
		return fmt.Errorf("not connected to signaling server")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// JoinRoom asks to occupy role in roomID.
func (c *Client) JoinRoom(roomID, role, clientID string) error {
	return c.Send(Message{Type: TypeJoinRoom, RoomID: roomID, Role: role, ClientID: clientID})
}

// SendOffer relays a local offer to the receiver.
func (c *Client) SendOffer(roomID string, offer webrtc.SessionDescription) error {
	sdp, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return c.Send(Message{Type: TypeOffer, RoomID: roomID, SDP: sdp})
}

// SendAnswer relays a local answer to the sender.
func (c *Client) SendAnswer(roomID string, answer webrtc.SessionDescription) error {
	sdp, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.Send(Message{Type: TypeAnswer, RoomID: roomID, SDP: sdp})
}

// SendICECandidate relays a trickled candidate to the peer.
func (c *Client) SendICECandidate(roomID string, candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.Send(Message{Type: TypeICECandidate, RoomID: roomID, Candidate: raw})
}

// SessionDescription decodes the sdp payload of an offer or answer.
func (m *Message) SessionDescription() (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if len(m.SDP) == 0 {
		return sd, fmt.Errorf("message %s carries no sdp", m.Type)
	}
	err := json.Unmarshal(m.SDP, &sd)
	return sd, err
}

// ICECandidate decodes the candidate payload.
func (m *Message) ICECandidate() (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if len(m.Candidate) == 0 {
		return ci, fmt.Errorf("message %s carries no candidate", m.Type)
	}
	err := json.Unmarshal(m.Candidate, &ci)
	return ci, err
}

// Close sends a close frame and releases the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}
