package mcp

import (
	"context"
	"encoding/json"
)

// Transport carries JSON-RPC messages between the client and one server.
type Transport interface {
	// Connect starts the server and begins reading its output.
	Connect(ctx context.Context) error

	// Close stops the server. It is safe to call more than once.
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the server is still reachable.
	Connected() bool
}
