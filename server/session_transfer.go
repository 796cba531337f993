package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

func (s *session) handleRETR(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	if s.pasvCh == nil && s.dataConn == nil {
		s.reply(425, "Can't open data connection.")
		return
	}

	file, err := s.fs.OpenFile(path, os.O_RDONLY)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	if s.server.quotaManager != nil {
		size := int64(0)
		if info, statErr := s.fs.GetFileInfo(path); statErr == nil {
			size = info.Size()
		}
		if err := s.server.quotaManager.ReserveDownload(s.user, size); err != nil {
			s.replyQuotaError(err)
			return
		}
	}

	if s.restartOffset > 0 {
		if seeker, ok := file.(io.Seeker); ok {
			_, err := seeker.Seek(s.restartOffset, io.SeekStart)
			if err != nil {
				s.replyError(err)
				return
			}
		} else {
			s.reply(550, "Resume not supported for this file.")
			s.restartOffset = 0
			return
		}
	}

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	if s.restartOffset > 0 {
		s.reply(150, fmt.Sprintf("Opening data connection for RETR (restarting at %d).", s.restartOffset))
	} else {
		s.reply(150, "Opening data connection for RETR.")
	}

	// Reset offset after use
	s.restartOffset = 0

	// Track transfer metrics
	startTime := time.Now()

	var src io.Reader = file
	if s.transferType == "A" {
		src = newASCIIReader(file)
	}
	dst := s.rateLimitWriter(conn)

	buf := make([]byte, s.server.downloadBufferSize)
	bytesTransferred, err := io.CopyBuffer(dst, src, buf)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	duration := time.Since(startTime)

	// Calculate throughput in MB/s
	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(bytesTransferred) / duration.Seconds() / 1024 / 1024
	}

	if s.server.telemetryRing != nil {
		s.server.telemetryRing.Update(int(s.telemetrySlot), s.user, "RETR", float32(throughputMBps), 0)
	}

	// Transfer logging
	s.server.logger.Info("transfer_complete",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
		"operation", "RETR",
		"path", s.redactPath(path),
		"bytes", bytesTransferred,
		"duration_ms", duration.Milliseconds(),
		"throughput_mbps", fmt.Sprintf("%.2f", throughputMBps),
	)

	// Metrics collection
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer("RETR", bytesTransferred, duration)
	}

	if s.server.quotaManager != nil {
		if err := s.server.quotaManager.CommitDownload(s.user, bytesTransferred); err != nil {
			s.server.logger.Warn("ratio accounting failed after transfer",
				"session_id", s.sessionID, "user", s.user, "error", err)
		}
	}

	s.logTransfer("RETR", path, bytesTransferred, duration)
	s.reply(226, "Transfer complete.")
}

func (s *session) handleSTOR(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	// Determine flags based on restart
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if s.restartOffset > 0 {
		flags = os.O_WRONLY | os.O_CREATE
	}

	if s.server.quotaManager != nil {
		if err := s.server.quotaManager.ReserveUpload(s.user, s.quotaBaseDir(), 0); err != nil {
			s.replyQuotaError(err)
			return
		}
	}

	file, err := s.fs.OpenFile(path, flags)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	if s.restartOffset > 0 {
		if seeker, ok := file.(io.Seeker); ok {
			_, err := seeker.Seek(s.restartOffset, io.SeekStart)
			if err != nil {
				s.replyError(err)
				return
			}
		} else {
			s.reply(550, "Resume not supported for this file.")
			s.restartOffset = 0
			return
		}
	}

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Opening data connection for STOR.")

	// Track transfer metrics
	startTime := time.Now()

	var src io.Reader = conn
	if s.transferType == "A" {
		src = newASCIIWriter(conn)
	}
	src = s.rateLimitReader(src)

	buf := make([]byte, s.server.uploadBufferSize)
	bytesTransferred, err := io.CopyBuffer(file, src, buf)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	duration := time.Since(startTime)

	// Calculate throughput in MB/s
	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(bytesTransferred) / duration.Seconds() / 1024 / 1024
	}

	if s.server.telemetryRing != nil {
		s.server.telemetryRing.Update(int(s.telemetrySlot), s.user, "STOR", 0, float32(throughputMBps))
	}

	// Transfer logging
	s.server.logger.Info("transfer_complete",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
		"operation", "STOR",
		"path", s.redactPath(path),
		"bytes", bytesTransferred,
		"duration_ms", duration.Milliseconds(),
		"throughput_mbps", fmt.Sprintf("%.2f", throughputMBps),
	)

	// Metrics collection
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer("STOR", bytesTransferred, duration)
	}

	if s.server.quotaManager != nil {
		// The admission check before the transfer was advisory (the size
		// was unknown); this accounting call with the actual byte count
		// is the final truth. On refusal the upload is not charged and
		// the stored bytes stay on disk (keep-partial policy).
		if err := s.server.quotaManager.CommitUpload(s.user, s.quotaBaseDir(), bytesTransferred); err != nil {
			s.server.logger.Warn("upload exceeded quota",
				"session_id", s.sessionID, "user", s.user, "bytes", bytesTransferred, "error", err)
			s.restartOffset = 0
			s.replyQuotaError(err)
			return
		}
	}

	s.restartOffset = 0
	s.logTransfer("STOR", path, bytesTransferred, duration)
	s.reply(226, "Transfer complete.")
}

func (s *session) handleAPPE(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	if s.server.quotaManager != nil {
		if err := s.server.quotaManager.ReserveUpload(s.user, s.quotaBaseDir(), 0); err != nil {
			s.replyQuotaError(err)
			return
		}
	}

	file, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Opening data connection for APPE.")

	var src io.Reader = conn
	if s.transferType == "A" {
		src = newASCIIWriter(conn)
	}
	src = s.rateLimitReader(src)

	buf := make([]byte, s.server.uploadBufferSize)
	bytesTransferred, err := io.CopyBuffer(file, src, buf)
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}

	if s.server.quotaManager != nil {
		if err := s.server.quotaManager.CommitUpload(s.user, s.quotaBaseDir(), bytesTransferred); err != nil {
			s.replyQuotaError(err)
			return
		}
	}

	s.reply(226, "Transfer complete.")
}

func (s *session) handleSTOU(_ string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	uuid := fmt.Sprintf("ftp-%d", time.Now().UnixNano())
	path := uuid

	file, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		s.replyError(err)
		return
	}
	defer file.Close()

	conn, err := s.connData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, fmt.Sprintf("FILE: %s", path))

	var src io.Reader = conn
	if s.transferType == "A" {
		src = newASCIIWriter(conn)
	}

	if _, err := io.Copy(file, src); err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}

	s.reply(226, "Transfer complete.")
}

func (s *session) handleTYPE(arg string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}
	// A/E/I select the representation type; "L n" selects local byte size.
	// Only ASCII gets line-ending conversion on the wire; EBCDIC and local
	// types transfer verbatim like Image.
	upper := strings.ToUpper(strings.TrimSpace(arg))
	switch upper {
	case "A", "A N":
		s.transferType = "A"
		s.reply(200, "Type set to A.")
		return
	case "E", "E N":
		s.transferType = "E"
		s.reply(200, "Type set to E.")
		return
	case "I":
		s.transferType = "I"
		s.reply(200, "Type set to I.")
		return
	}
	if rest, ok := strings.CutPrefix(upper, "L "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < 1 || n > 64 {
			s.reply(504, "Type not supported.")
			return
		}
		s.transferType = "I"
		s.reply(200, fmt.Sprintf("Type set to L %d.", n))
		return
	}
	s.reply(504, "Type not supported.")
}

func (s *session) handlePORT(arg string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	// Format: h1,h2,h3,h4,p1,p2
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		s.reply(501, "Invalid port number.")
		return
	}

	ipStr := strings.Join(parts[0:4], ".")
	ip := net.ParseIP(ipStr)
	if ip == nil {
		s.reply(501, "Invalid IP address.")
		return
	}

	if !s.validateActiveIP(ip) {
		s.reply(500, "Illegal PORT command.")
		return
	}

	s.dialActive(ip.String(), p1*256+p2, "PORT")
}

// dialActive connects out to the client's advertised endpoint right away
// and parks the stream in the session's data slot; the next transfer verb
// consumes it.
func (s *session) dialActive(ip string, port int, verb string) {
	if s.dataConn != nil {
		s.dataConn.Close()
		s.dataConn = nil
	}

	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	s.server.logger.Debug("dialing active connection",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"addr", addr,
	)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	s.dataConn = conn

	s.reply(200, verb+" command successful.")
}

func (s *session) listenPassive() (net.Listener, error) {
	settings := s.fs.GetSettings()
	if settings != nil && settings.PasvMinPort > 0 && settings.PasvMaxPort >= settings.PasvMinPort {
		minPort := settings.PasvMinPort
		maxPort := settings.PasvMaxPort
		rangeLen := int32(maxPort - minPort + 1)

		// Get a starting offset using round-robin
		startOffset := atomic.AddInt32(&s.server.nextPassivePort, 1)

		for i := int32(0); i < rangeLen; i++ {
			offset := (startOffset + i) % rangeLen
			port := int(int32(minPort) + offset)

			ln, err := s.server.listenerFactory.Listen("tcp", fmt.Sprintf(":%d", port))
			if err == nil {
				return ln, nil
			}
		}
		return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
	}
	return s.server.listenerFactory.Listen("tcp", ":0")
}

// startPassiveAccept parks ln in the session's pending slot and detaches a
// goroutine to accept the client's inbound connection. The handler replies
// (227/229) and returns immediately; the client only issues its transfer
// verb after seeing the reply, so blocking the control loop on the accept
// would deadlock the protocol. The transfer verb collects the stream (or
// the accept error) from the one-shot channel.
func (s *session) startPassiveAccept(ln net.Listener) {
	if s.pasvList != nil {
		s.pasvList.Close()
	}
	if s.pasvCh != nil {
		select {
		case res := <-s.pasvCh:
			if res.conn != nil {
				res.conn.Close()
			}
		default:
		}
	}

	ch := make(chan pasvResult, 1)
	s.pasvList = ln
	s.pasvCh = ch

	go func() {
		if t, ok := ln.(*net.TCPListener); ok {
			_ = t.SetDeadline(time.Now().Add(30 * time.Second))
		}
		conn, err := ln.Accept()
		ln.Close()
		ch <- pasvResult{conn: conn, err: err}
	}()
}

func (s *session) handlePASV(_ string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	ln, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.startPassiveAccept(ln)

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	// Determine IP to send
	// 1. Get local connection IP
	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())

	// 2. Override with PublicHost if set
	settings := s.fs.GetSettings()
	if settings != nil && settings.PublicHost != "" {
		host = settings.PublicHost
	}

	// 3. Resolve to IPv4
	ip := net.ParseIP(host)
	if ip == nil {
		// Use cached resolution if available
		if host == s.lastPublicHost && s.resolvedIP != nil {
			ip = s.resolvedIP
		} else {
			// Try resolving hostname
			fileArgs, err := net.LookupIP(host)
			if err == nil {
				for _, resolvedIP := range fileArgs {
					if ipv4 := resolvedIP.To4(); ipv4 != nil {
						ip = ipv4
						s.lastPublicHost = host
						s.resolvedIP = ip
						break
					}
				}
			}
		}
	}

	// 4. Format for PASV response (h1,h2,h3,h4)
	var ipParts []string
	if ip != nil && ip.To4() != nil {
		ip = ip.To4()
		ipParts = strings.Split(ip.String(), ".")
	}

	if len(ipParts) != 4 {
		// Fallback for non-IPv4 or failed resolution
		ipParts = []string{"0", "0", "0", "0"}
	}

	p1 := port / 256
	p2 := port % 256
	arg := fmt.Sprintf("%s,%s,%s,%s,%d,%d", ipParts[0], ipParts[1], ipParts[2], ipParts[3], p1, p2)
	s.reply(227, "Entering Passive Mode ("+arg+").")
}

func (s *session) handleEPSV(_ string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	ln, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.startPassiveAccept(ln)

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%s|)", portStr))
}

func (s *session) handleEPRT(arg string) {
	if !s.isLoggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return
	}

	if len(arg) < 4 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	delim := string(arg[0])
	parts := strings.Split(arg, delim)

	// Expected format: <delim><proto><delim><ip><delim><port><delim>
	// Split results in: ["", "proto", "ip", "port", ""]
	if len(parts) != 5 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	// Protocol: 1 = IPv4, 2 = IPv6
	proto := parts[1]
	ipStr := parts[2]
	portStr := parts[3]

	// Validate IP
	ip := net.ParseIP(ipStr)
	if ip == nil {
		s.reply(501, "Invalid network address.")
		return
	}

	// Validate Protocol vs IP type
	if proto == "1" && ip.To4() == nil {
		s.reply(522, "Network protocol not supported, use (2).")
		return
	}
	// if proto == "2" && ip.To4() != nil {
	// 	// Strictly speaking, IPv4-mapped IPv6 is valid in Go, but RFC implies 2 is for IPv6.
	// 	// We'll accept it but verify parsing.
	// }
	if proto != "1" && proto != "2" {
		s.reply(522, "Network protocol not supported, use (1,2).")
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		s.reply(501, "Invalid port number.")
		return
	}

	if !s.validateActiveIP(ip) {
		s.reply(500, "Illegal EPRT command.")
		return
	}

	s.dialActive(ip.String(), port, "EPRT")
}

func (s *session) handleREST(arg string) {
	offset, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		s.reply(501, "Invalid offset.")
		return
	}
	s.restartOffset = offset
	s.reply(350, fmt.Sprintf("Restarting at %d. Send STOR or RETR to initiate transfer.", offset))
}
