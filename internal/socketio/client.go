// Package socketio is a minimal Socket.IO v5 client over an Engine.IO v4
// WebSocket transport. It supports one namespace per connection, event
// handlers, and emitting JSON or binary events.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client errors.
var (
	ErrNotConnected     = errors.New("socketio: not connected")
	ErrAlreadyConnected = errors.New("socketio: already connected")
)

// Reserved event names dispatched by the client itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

const defaultHandshakeTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// HandshakeTimeout bounds Connect when the context carries no deadline.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each frame write when the context carries no deadline.
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
	Logger       zerolog.Logger
}

// Client is a Socket.IO client. Handlers survive Disconnect, so a Client
// can be connected again.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu        sync.Mutex
	handlers  map[string][]func(json.RawMessage)
	conn      *websocket.Conn
	namespace string

	writeMu sync.Mutex
}

// handshake is the Engine.IO open packet payload.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	return &Client{
		opts:     opts,
		dialer:   dialer,
		logger:   opts.Logger.With().Str("component", "socketio").Logger(),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

func handlerKey(event, namespace string) string {
	if namespace == "" {
		namespace = "/"
	}
	return event + ":" + namespace
}

// On registers handler for event on namespace. Handlers run on the
// client's read goroutine and must not block for long.
func (c *Client) On(event, namespace string, handler func(json.RawMessage)) {
	key := handlerKey(event, namespace)
	c.mu.Lock()
	c.handlers[key] = append(c.handlers[key], handler)
	c.mu.Unlock()
}

func (c *Client) dispatch(event, namespace string, data json.RawMessage) {
	key := handlerKey(event, namespace)
	c.mu.Lock()
	handlers := append([]func(json.RawMessage){}, c.handlers[key]...)
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug().Str("event", event).Str("namespace", namespace).Msg("no handler for event")
		return
	}
	for _, h := range handlers {
		h(data)
	}
}

// Connected reports whether the client holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// endpointURL maps an http(s) server URL to the Engine.IO WebSocket endpoint.
func endpointURL(rawURL, path string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/socket.io"
	}
	u.Path = strings.TrimSuffix(path, "/") + "/"

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the WebSocket, completes the Engine.IO handshake and joins
// namespace. On failure no connection is retained.
func (c *Client) Connect(ctx context.Context, rawURL string, header http.Header, path, namespace string) error {
	if namespace == "" {
		namespace = "/"
	}
	if c.Connected() {
		return ErrAlreadyConnected
	}

	wsURL, err := endpointURL(rawURL, path)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("socketio: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("socketio: dial failed: %w", err)
	}

	hs, err := c.handshake(ctx, conn, namespace)
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.namespace = namespace
	c.mu.Unlock()

	c.logger.Debug().Str("sid", hs.SID).Str("namespace", namespace).Msg("connected")

	// Connect handlers run before the read loop starts, so a server-side
	// disconnect is always dispatched after them.
	c.dispatch(EventConnect, namespace, nil)
	if !c.current(conn) {
		return nil
	}

	keepalive := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	go c.readLoop(conn, keepalive)
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, namespace string) (*handshake, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("socketio: read open packet: %w", err)
	}
	if len(data) == 0 || data[0] != eioOpen {
		return nil, fmt.Errorf("socketio: unexpected open packet %q", data)
	}
	var hs handshake
	if err := json.Unmarshal(data[1:], &hs); err != nil {
		return nil, fmt.Errorf("socketio: decode open packet: %w", err)
	}

	if err := c.writeText(ctx, conn, packet{Type: packetConnect, Namespace: namespace}.encode()); err != nil {
		return nil, fmt.Errorf("socketio: join namespace: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("socketio: await namespace ack: %w", err)
		}
		msg := string(data)
		if msg == "" {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.writeText(ctx, conn, string(eioPong)); err != nil {
				return nil, err
			}
			continue
		case eioClose:
			return nil, errors.New("socketio: server closed during handshake")
		case eioMessage:
		default:
			continue
		}

		p, err := decodePacket(msg[1:])
		if err != nil || p.Namespace != namespace {
			continue
		}
		switch p.Type {
		case packetConnect:
			return &hs, nil
		case packetConnectError:
			var reason struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(p.Data, &reason)
			if reason.Message == "" {
				reason.Message = string(p.Data)
			}
			return nil, fmt.Errorf("socketio: namespace %s rejected: %s", namespace, reason.Message)
		}
	}
}

type pendingBinary struct {
	event       string
	namespace   string
	arg         json.RawMessage
	need        int
	attachments [][]byte
}

// current reports whether conn is still the live connection.
func (c *Client) current(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// readLoop owns reads on conn. Events are dropped once conn is no longer
// current, so nothing is dispatched after Disconnect returns.
func (c *Client) readLoop(conn *websocket.Conn, keepalive time.Duration) {
	var pending *pendingBinary
	for {
		if keepalive > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(keepalive))
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.teardown(conn, err)
			return
		}

		if mt == websocket.BinaryMessage {
			if pending == nil {
				c.logger.Warn().Int("bytes", len(data)).Msg("unexpected binary frame")
				continue
			}
			pending.attachments = append(pending.attachments, data)
			if len(pending.attachments) == pending.need {
				if !c.current(conn) {
					return
				}
				c.dispatch(pending.event, pending.namespace, resolvePlaceholder(pending.arg, pending.attachments))
				pending = nil
			}
			continue
		}

		msg := string(data)
		if msg == "" {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.writeText(context.Background(), conn, string(eioPong)); err != nil {
				c.teardown(conn, err)
				return
			}
		case eioClose:
			c.teardown(conn, errors.New("socketio: closed by server"))
			return
		case eioMessage:
			p, err := decodePacket(msg[1:])
			if err != nil {
				c.logger.Warn().Err(err).Msg("dropping packet")
				continue
			}
			switch p.Type {
			case packetEvent:
				name, arg, err := decodeEvent(p.Data)
				if err != nil {
					c.logger.Warn().Err(err).Msg("dropping event")
					continue
				}
				if !c.current(conn) {
					return
				}
				c.dispatch(name, p.Namespace, arg)
			case packetBinaryEvent:
				name, arg, err := decodeEvent(p.Data)
				if err != nil {
					c.logger.Warn().Err(err).Msg("dropping binary event")
					continue
				}
				if p.Attachments == 0 {
					if !c.current(conn) {
						return
					}
					c.dispatch(name, p.Namespace, arg)
					continue
				}
				pending = &pendingBinary{event: name, namespace: p.Namespace, arg: arg, need: p.Attachments}
			case packetDisconnect:
				c.teardown(conn, errors.New("socketio: namespace disconnected by server"))
				return
			default:
				c.logger.Debug().Str("type", string(p.Type)).Msg("ignoring packet")
			}
		}
	}
}

// teardown releases conn after a server-side or network failure. It is a
// no-op when Disconnect already released the connection.
func (c *Client) teardown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	namespace := c.namespace
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn().Err(cause).Str("namespace", namespace).Msg("connection lost")
	c.dispatch(EventDisconnect, namespace, nil)
}

// Emit sends event with data on namespace. A []byte payload is sent as a
// binary attachment.
func (c *Client) Emit(ctx context.Context, event, namespace string, data interface{}) error {
	if namespace == "" {
		namespace = "/"
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	p, attachment, err := eventPacket(event, namespace, data)
	if err != nil {
		return fmt.Errorf("socketio: encode event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.setWriteDeadline(ctx, conn)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(p.encode())); err != nil {
		return fmt.Errorf("socketio: write event: %w", err)
	}
	if attachment != nil {
		if err := conn.WriteMessage(websocket.BinaryMessage, attachment); err != nil {
			return fmt.Errorf("socketio: write attachment: %w", err)
		}
	}
	return nil
}

// Disconnect leaves the namespace and closes the connection. It is a no-op
// when not connected. It does not wait for the read loop, so handlers may
// call it.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.conn = nil
	namespace := c.namespace
	c.mu.Unlock()

	if err := c.writeText(ctx, conn, packet{Type: packetDisconnect, Namespace: namespace}.encode()); err != nil {
		c.logger.Debug().Err(err).Msg("leave namespace")
	}
	closeErr := conn.Close()

	c.dispatch(EventDisconnect, namespace, nil)
	if closeErr != nil {
		return fmt.Errorf("socketio: close: %w", closeErr)
	}
	return nil
}

func (c *Client) writeText(ctx context.Context, conn *websocket.Conn, msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline(ctx, conn)
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Client) setWriteDeadline(ctx context.Context, conn *websocket.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		return
	}
	if c.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})
}
