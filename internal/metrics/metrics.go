// Package metrics provides interfaces and implementations for collecting
// rouilleftpd server metrics. This package defines the Collector interface
// for recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording FTP server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Authentication metrics
	AuthAttempt(username string, success bool)

	// Command metrics
	CommandProcessed(command string)

	// Transfer metrics
	TransferCompleted(direction string, sizeBytes int64)
	TransferFailed(direction string)

	// Quota/ratio metrics
	QuotaDenied(username string)
	RatioDenied(username string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
