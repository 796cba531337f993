package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished() {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(username string, success bool) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(command string) {}

// TransferCompleted is a no-op.
func (n *NoopCollector) TransferCompleted(direction string, sizeBytes int64) {}

// TransferFailed is a no-op.
func (n *NoopCollector) TransferFailed(direction string) {}

// QuotaDenied is a no-op.
func (n *NoopCollector) QuotaDenied(username string) {}

// RatioDenied is a no-op.
func (n *NoopCollector) RatioDenied(username string) {}
