package aiola

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Streaming transport constants.
const (
	streamingPath      = "/api/voice-streaming/socket.io"
	streamingNamespace = "/events"
	audioEvent         = "binary_data"
)

// EventHandler receives the payload of a live event. Payloads are raw JSON;
// connect and disconnect events carry none.
type EventHandler func(data json.RawMessage)

// StreamConnection is one live transcription session. It starts
// disconnected; Connect, Send and Disconnect must not be called
// concurrently on the same connection.
type StreamConnection struct {
	url       string
	header    http.Header
	path      string
	namespace string

	transport Transport
	logger    zerolog.Logger
	metrics   *metrics

	mu         sync.Mutex
	connected  bool
	closes     int
	handlers   map[string][]EventHandler
	registered map[string]bool
}

func newStreamConnection(url string, header http.Header, transport Transport, logger zerolog.Logger, m *metrics) *StreamConnection {
	c := &StreamConnection{
		url:        url,
		header:     header,
		path:       streamingPath,
		namespace:  streamingNamespace,
		transport:  transport,
		logger:     logger,
		metrics:    m,
		handlers:   make(map[string][]EventHandler),
		registered: make(map[string]bool),
	}
	c.bind(EventConnect)
	c.bind(EventDisconnect)
	return c
}

func (c *StreamConnection) eventKey(event LiveEvent) string {
	return string(event) + ":" + c.namespace
}

// bind installs one transport dispatcher per event. Caller must not hold mu.
func (c *StreamConnection) bind(event LiveEvent) {
	key := c.eventKey(event)

	c.mu.Lock()
	if c.registered[key] {
		c.mu.Unlock()
		return
	}
	c.registered[key] = true
	c.mu.Unlock()

	c.transport.On(string(event), c.namespace, func(data json.RawMessage) {
		switch event {
		case EventConnect:
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
		case EventDisconnect:
			c.markDisconnected()
		}
		c.mu.Lock()
		handlers := append([]EventHandler(nil), c.handlers[key]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(data)
		}
	})
}

// On registers handler for event. Handlers may be added before or after
// Connect and run in registration order on the transport's read goroutine.
// A handler may call Disconnect, for example on EventError.
func (c *StreamConnection) On(event LiveEvent, handler EventHandler) {
	if !event.Valid() {
		c.logger.Debug().Str("event", string(event)).Msg("registering handler for unknown event")
	}
	key := c.eventKey(event)
	c.mu.Lock()
	c.handlers[key] = append(c.handlers[key], handler)
	c.mu.Unlock()
	c.bind(event)
}

// Connect establishes the streaming session. It is a no-op when already
// connected. On failure the connection stays disconnected.
func (c *StreamConnection) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	c.mu.Lock()
	closes := c.closes
	c.mu.Unlock()

	if err := c.transport.Connect(ctx, c.url, c.header.Clone(), c.path, c.namespace); err != nil {
		c.metrics.streamConnect("error")
		c.logger.Warn().Err(err).Msg("streaming connection failed")
		return &StreamingError{Message: "Failed to create streaming connection", Cause: err}
	}

	c.metrics.streamConnect("success")
	c.logger.Info().Msg("streaming connection established")

	// A handler may already have torn the session down.
	c.mu.Lock()
	if c.closes == closes {
		c.connected = true
	}
	c.mu.Unlock()
	return nil
}

// Send emits one chunk of audio. It fails with ErrConnectionNotEstablished
// before touching the transport when the connection is not connected.
func (c *StreamConnection) Send(ctx context.Context, audio []byte) error {
	if !c.Connected() {
		return ErrConnectionNotEstablished
	}
	if err := c.transport.Emit(ctx, audioEvent, c.namespace, audio); err != nil {
		return &StreamingError{Message: "Failed to send audio", Cause: err}
	}
	return nil
}

// Disconnect tears down the session. It is idempotent and always leaves
// the connection disconnected; Connect may be called again afterwards.
func (c *StreamConnection) Disconnect(ctx context.Context) error {
	if !c.markDisconnected() {
		return nil
	}
	if err := c.transport.Disconnect(ctx); err != nil {
		return &StreamingError{Message: "Failed to disconnect", Cause: err}
	}
	return nil
}

// markDisconnected flips the state and reports whether it was connected.
func (c *StreamConnection) markDisconnected() bool {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	if was {
		c.closes++
	}
	c.mu.Unlock()

	if was {
		c.metrics.streamDisconnected()
		c.logger.Info().Msg("streaming connection closed")
	}
	return was
}

// Connected reports whether the session is connected.
func (c *StreamConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// URL returns the streaming URL including its query parameters.
func (c *StreamConnection) URL() string {
	return c.url
}

// Header returns a copy of the handshake headers.
func (c *StreamConnection) Header() http.Header {
	return c.header.Clone()
}
