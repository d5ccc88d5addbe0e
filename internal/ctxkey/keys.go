// Package ctxkey defines context key types shared by the inbound adapters.
// It must not import other internal packages.
package ctxkey

// RequestIDKey carries the correlation ID of an inbound request.
type RequestIDKey struct{}

// LoggerKey carries a logger enriched with request attributes.
type LoggerKey struct{}
