package aiola

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiola-lab/aiola-go-sdk/internal/socketio"
)

// Transport is a bidirectional event-streaming client. A StreamConnection
// owns exactly one Transport and serializes its calls.
type Transport interface {
	// Connect dials rawURL using the transport path and joins namespace.
	Connect(ctx context.Context, rawURL string, header http.Header, path, namespace string) error
	// On registers handler for a server-pushed event on namespace.
	On(event, namespace string, handler func(data json.RawMessage))
	// Emit sends an event; []byte data is sent as a binary payload.
	Emit(ctx context.Context, event, namespace string, data interface{}) error
	// Disconnect closes the connection and is a no-op when not connected.
	// It must be safe to call from an event handler.
	Disconnect(ctx context.Context) error
}

// TransportFactory creates a fresh Transport for each stream.
type TransportFactory func() Transport

func defaultTransport(timeout time.Duration, logger zerolog.Logger) TransportFactory {
	return func() Transport {
		return socketio.New(socketio.Options{
			HandshakeTimeout: timeout,
			WriteTimeout:     timeout,
			Logger:           logger,
		})
	}
}
