package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Handler serves a Source over the dealer websocket protocol and broadcasts
// phase signals to every connected client.
type Handler struct {
	source   Source
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*connection]struct{}
}

// NewHandler creates a websocket handler for src.
func NewHandler(src Source, logger *log.Logger) *Handler {
	return &Handler{
		source: src,
		logger: logger.WithPrefix("dealer"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: make(map[*connection]struct{}),
	}
}

// ServeHTTP upgrades the request and serves it until the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := newConnection(ws, h)
	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("Client connected", "total", total)

	go c.writePump()
	c.readPump()

	h.mu.Lock()
	delete(h.conns, c)
	total = len(h.conns)
	h.mu.Unlock()
	h.logger.Info("Client disconnected", "total", total)
}

// PublishPhase pushes phase to every connected client and returns how many
// received it.
func (h *Handler) PublishPhase(phase round.Phase) int {
	msg, err := NewMessage(MessageTypePhase, phase)
	if err != nil {
		h.logger.Error("Failed to encode phase", "error", err)
		return 0
	}
	msg.Round = phase.Round

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.conns {
		if c.send(msg) == nil {
			sent++
		}
	}
	return sent
}

// Connections returns the number of connected clients.
func (h *Handler) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Handler) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		_ = c.close()
	}
}

func (h *Handler) respond(ctx context.Context, req *Message) *Message {
	resp := &Message{Type: MessageTypeResponse, ID: req.ID, Method: req.Method, Round: req.Round}

	var (
		data any
		err  error
	)
	switch req.Method {
	case MethodRngMetadata:
		data, err = h.source.RngMetadata(ctx, req.Round)
	case MethodCardProvenance:
		data, err = h.source.CardProvenance(ctx, req.Round)
	case MethodServerVerification:
		data, err = h.source.ServerVerification(ctx, req.Round)
	default:
		resp.Error = &RPCError{Code: CodeInvalid, Message: "unknown method " + req.Method}
		return resp
	}

	if err != nil {
		code := CodeInternal
		switch {
		case errors.Is(err, ErrNotFound):
			code = CodeNotFound
		case errors.Is(err, fault.ErrUnavailable):
			code = CodeNotRevealed
		case fault.IsRetryable(err):
			code = CodeUnavailable
		}
		h.logger.Debug("Request failed", "method", req.Method, "round", req.Round, "error", err)
		resp.Error = &RPCError{Code: code, Message: err.Error()}
		return resp
	}

	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternal, Message: err.Error()}
		return resp
	}
	resp.Data = raw
	resp.Timestamp = time.Now().UTC()
	return resp
}

// connection is one served websocket peer.
type connection struct {
	ws        *websocket.Conn
	handler   *Handler
	out       chan *Message
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, h *Handler) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		ws:      ws,
		handler: h,
		out:     make(chan *Message, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *connection) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

func (c *connection) send(msg *Message) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.handler.logger.Warn("Connection send buffer full, closing connection")
		_ = c.close()
		return websocket.ErrCloseSent
	}
}

func (c *connection) readPump() {
	defer func() { _ = c.close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		if msg.Type != MessageTypeRequest {
			continue
		}
		req := msg
		go func() {
			if err := c.send(c.handler.respond(c.ctx, &req)); err != nil {
				c.handler.logger.Debug("Dropped response", "id", req.ID, "error", err)
			}
		}()
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.close()
	}()

	for {
		select {
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.handler.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
