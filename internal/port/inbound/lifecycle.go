// Package inbound defines the inbound port interfaces for the session tracker.
// Inbound adapters (stdio, HTTP) call these interfaces.
package inbound

import (
	"context"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// SessionLifecycle is the inbound port for lifecycle events.
// StartSession and EndSession never block on processing.
type SessionLifecycle interface {
	StartSession()
	EndSession()

	// Status returns the tracker state once every earlier event is processed.
	Status(ctx context.Context) (session.Status, error)
}

// Transport feeds lifecycle events from an external source.
type Transport interface {
	// Start serves until the context is cancelled or an error occurs.
	// Returns nil on graceful shutdown, error on failure.
	Start(ctx context.Context) error

	// Close gracefully shuts down the transport and cleans up resources.
	Close() error
}
