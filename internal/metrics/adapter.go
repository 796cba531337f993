package metrics

import "time"

// FTPAdapter bridges a Collector to the FTP server's metrics-collector
// option, translating the server's callback shape into Collector calls.
type FTPAdapter struct {
	c Collector
}

// NewFTPAdapter wraps c for use with the server's WithMetricsCollector.
func NewFTPAdapter(c Collector) *FTPAdapter {
	return &FTPAdapter{c: c}
}

// RecordCommand counts a processed command.
func (a *FTPAdapter) RecordCommand(cmd string, success bool, duration time.Duration) {
	a.c.CommandProcessed(cmd)
}

// RecordTransfer counts a completed transfer, classified by direction.
func (a *FTPAdapter) RecordTransfer(operation string, bytes int64, duration time.Duration) {
	direction := "download"
	switch operation {
	case "STOR", "APPE", "STOU":
		direction = "upload"
	}
	a.c.TransferCompleted(direction, bytes)
}

// RecordConnection counts an accepted connection; rejected ones never
// become sessions and are not tracked by the active gauge.
func (a *FTPAdapter) RecordConnection(accepted bool, reason string) {
	if accepted {
		a.c.ConnectionOpened()
	}
}

// RecordAuthentication counts a USER/PASS attempt.
func (a *FTPAdapter) RecordAuthentication(success bool, user string) {
	a.c.AuthAttempt(user, success)
}

// RecordQuotaRefusal counts a 552 refusal; ratio selects between the
// ratio-denied and quota-denied counters.
func (a *FTPAdapter) RecordQuotaRefusal(user string, ratio bool) {
	if ratio {
		a.c.RatioDenied(user)
	} else {
		a.c.QuotaDenied(user)
	}
}

// RecordSessionClosed decrements the active-connections gauge.
func (a *FTPAdapter) RecordSessionClosed() {
	a.c.ConnectionClosed()
}

// RecordTLSUpgrade counts a completed AUTH TLS handshake.
func (a *FTPAdapter) RecordTLSUpgrade() {
	a.c.TLSConnectionEstablished()
}
