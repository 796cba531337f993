package server

import (
	"crypto/tls"
	"strings"
)

// tlsUpgradeRecorder is the optional metrics hook for completed AUTH TLS
// handshakes; collectors that care (e.g. the Prometheus adapter)
// implement it.
type tlsUpgradeRecorder interface {
	RecordTLSUpgrade()
}

// handleAUTH upgrades the control connection to TLS in place (RFC 4217).
// The reply goes out in clear text; everything after it, starting with
// the client's handshake, runs over TLS. The session's telnet filter and
// buffered reader/writer are rewired onto the wrapped connection so
// command parsing continues unchanged.
func (s *session) handleAUTH(arg string) {
	if s.server.tlsConfig == nil {
		s.reply(502, "TLS not configured.")
		return
	}
	if strings.ToUpper(strings.TrimSpace(arg)) != "TLS" {
		s.reply(504, "Only AUTH TLS is supported.")
		return
	}

	s.reply(234, "AUTH TLS successful.")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)

	s.mu.Lock()
	s.conn = tlsConn
	s.tnet.Reset(tlsConn)
	s.reader.Reset(s.tnet)
	s.writer.Reset(tlsConn)
	s.mu.Unlock()

	s.server.logger.Info("control_channel_upgraded",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
	)
	if rec, ok := s.server.metricsCollector.(tlsUpgradeRecorder); ok {
		rec.RecordTLSUpgrade()
	}
}

// handlePROT selects the data-channel protection level: P wraps every
// data connection in TLS, C leaves it clear.
func (s *session) handlePROT(arg string) {
	if s.server.tlsConfig == nil {
		s.reply(502, "TLS not configured.")
		return
	}
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "P":
		s.prot = "P"
		s.reply(200, "PROT P OK.")
	case "C":
		s.prot = "C"
		s.reply(200, "PROT C OK.")
	default:
		s.reply(504, "PROT not implemented.")
	}
}

// handlePBSZ accepts the protection buffer size negotiation that RFC 4217
// requires before PROT. TLS streams have no record-level buffer to size,
// so the only supported value is 0 and any request is answered with it.
func (s *session) handlePBSZ(arg string) {
	if s.server.tlsConfig == nil {
		s.reply(502, "TLS not configured.")
		return
	}
	s.reply(200, "PBSZ=0")
}
