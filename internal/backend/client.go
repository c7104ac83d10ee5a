package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

var (
	errNotConnected   = errors.New("not connected")
	errConnectionLost = errors.New("connection lost")
	errClientClosed   = errors.New("client closed")
)

// Client is a Source backed by the dealer's websocket API. It reconnects
// lazily on the next call after the connection drops.
type Client struct {
	serverURL string
	logger    *log.Logger
	timeout   time.Duration

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	closed        bool
	pending       map[uint64]chan *Message
	phaseHandlers []PhaseHandler

	writeMu sync.Mutex
	nextID  atomic.Uint64
}

// NewClient creates a client for serverURL. A positive timeout bounds each
// request.
func NewClient(serverURL string, logger *log.Logger, timeout time.Duration) *Client {
	return &Client{
		serverURL: serverURL,
		logger:    logger.WithPrefix("backend"),
		timeout:   timeout,
		pending:   make(map[uint64]chan *Message),
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		u.Scheme = "ws"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	if c.connected {
		return nil
	}

	c.logger.Info("Connecting to dealer", "url", u.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fault.Transport("connect", err)
	}
	c.conn = conn
	c.connected = true

	go c.readMessages(conn)
	return nil
}

// Close closes the connection and fails any in-flight requests.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if !c.connected {
		return nil
	}
	c.connected = false

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// OnPhase registers a handler for game-phase pushes. Handlers run on the
// read loop in arrival order and must not call back into the client.
func (c *Client) OnPhase(h PhaseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phaseHandlers = append(c.phaseHandlers, h)
}

// RngMetadata implements Source.
func (c *Client) RngMetadata(ctx context.Context, id round.ID) (round.RngMetadata, error) {
	var md round.RngMetadata
	err := c.call(ctx, MethodRngMetadata, id, &md)
	return md, err
}

// CardProvenance implements Source.
func (c *Client) CardProvenance(ctx context.Context, id round.ID) ([]round.CardProvenance, error) {
	var records []round.CardProvenance
	err := c.call(ctx, MethodCardProvenance, id, &records)
	return records, err
}

// ServerVerification implements Source.
func (c *Client) ServerVerification(ctx context.Context, id round.ID) (Attestation, error) {
	var att Attestation
	err := c.call(ctx, MethodServerVerification, id, &att)
	return att, err
}

func (c *Client) call(ctx context.Context, method string, id round.ID, out any) error {
	if err := c.Connect(ctx); err != nil {
		if errors.Is(err, errClientClosed) {
			return fault.Transport(method, err)
		}
		return err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &Message{
		Type:      MessageTypeRequest,
		ID:        c.nextID.Add(1),
		Method:    method,
		Round:     id,
		Timestamp: time.Now().UTC(),
	}
	ch := make(chan *Message, 1)

	c.mu.Lock()
	conn := c.conn
	if !c.connected || conn == nil {
		c.mu.Unlock()
		return fault.Transport(method, errNotConnected)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fault.Transport(method, err)
	}

	var resp *Message
	select {
	case m, ok := <-ch:
		if !ok {
			return fault.Transport(method, errConnectionLost)
		}
		resp = m
	case <-ctx.Done():
		return fault.Transport(method, ctx.Err())
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case CodeNotFound:
			return fmt.Errorf("%s round %d: %w", method, id, ErrNotFound)
		case CodeNotRevealed:
			return fmt.Errorf("%s round %d: %w", method, id, fault.ErrUnavailable)
		case CodeUnavailable:
			return fault.Transport(method, resp.Error)
		}
		return fmt.Errorf("%s round %d: %w", method, id, resp.Error)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

// readMessages reads frames from conn until it fails, then fails every
// request still waiting on it.
func (c *Client) readMessages(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
		}
		c.mu.Unlock()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.dispatchMessage(&msg)
	}
}

func (c *Client) dispatchMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeResponse:
		c.mu.RLock()
		ch, ok := c.pending[msg.ID]
		c.mu.RUnlock()
		if !ok {
			c.logger.Debug("Dropping response for unknown request", "id", msg.ID)
			return
		}
		ch <- msg

	case MessageTypePhase:
		var phase round.Phase
		if err := json.Unmarshal(msg.Data, &phase); err != nil {
			c.logger.Warn("Failed to decode phase", "error", err)
			return
		}
		c.mu.RLock()
		handlers := c.phaseHandlers
		c.mu.RUnlock()
		for _, h := range handlers {
			h(phase)
		}

	default:
		c.logger.Debug("Ignoring message", "type", msg.Type)
	}
}
