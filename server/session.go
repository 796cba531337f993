package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rouilleftpd/rouilleftpd/internal/ftpserver"
	"github.com/rouilleftpd/rouilleftpd/internal/quota"
	"github.com/rouilleftpd/rouilleftpd/internal/ratelimit"
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

// session represents an FTP client session.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	tnet   *telnetReader
	mu     sync.Mutex // Protects writer and state

	// Session tracking
	sessionID string
	remoteIP  string

	// State
	isLoggedIn    bool
	user          string
	renameFrom    string // For RNFR/RNTO
	fs            ClientContext
	restartOffset int64  // For REST command
	transferType  string // Transfer type (A=ASCII, I=Binary), default I

	// Background transfer state
	busy           bool
	transferCtx    context.Context
	transferCancel context.CancelFunc
	transferWG     sync.WaitGroup

	// Reader synchronization
	cmdReqChan chan struct{}

	// Data connection state. The slot moves None -> Pending -> Ready:
	// PASV leaves a one-shot channel in pasvCh that a detached acceptor
	// goroutine fulfills once the client dials in; PORT dials out
	// immediately and parks the stream in dataConn. Exactly one transfer
	// verb consumes either, after which both are reset.
	dataConn net.Conn        // Ready: stream from PORT/EPRT dial
	pasvCh   chan pasvResult // Pending: handoff from the PASV acceptor
	pasvList net.Listener    // kept so session close can abort a pending accept
	prot     string          // PROT P or C

	// Cache for PASV IP resolution
	lastPublicHost string
	resolvedIP     net.IP

	// telemetrySlot is this session's fixed index into the server's
	// telemetry ring, assigned once in newSession.
	telemetrySlot int32

	// connectedAt and lastCommandAt back SITE WHO/IDLE reporting.
	connectedAt   time.Time
	lastCommandAt time.Time
}

// quotaBaseDir returns the base directory recorded on a user's quota
// record. This server roots every session at the same configured chroot
// (the base path is config-wide, not per-user), so the value is
// constant across users; it exists only to populate UserQuota.BaseDir.
func (s *session) quotaBaseDir() string {
	return "/"
}

// quotaRefusalRecorder is the optional metrics hook for 552 refusals;
// collectors that care (e.g. the Prometheus adapter) implement it.
type quotaRefusalRecorder interface {
	RecordQuotaRefusal(user string, ratio bool)
}

// sessionCloseRecorder is the optional metrics hook for session teardown.
type sessionCloseRecorder interface {
	RecordSessionClosed()
}

// replyQuotaError sends the FTP reply for a quota/ratio refusal; both
// QuotaExceeded and RatioLimitReached map to 552.
func (s *session) replyQuotaError(err error) {
	var qerr *quota.Error
	if errors.As(err, &qerr) {
		if rec, ok := s.server.metricsCollector.(quotaRefusalRecorder); ok {
			rec.RecordQuotaRefusal(s.user, qerr.Kind() == quota.ErrRatioLimitReached)
		}
		s.reply(552, strings.TrimPrefix(qerr.FTPReply(), "552 "))
		return
	}
	s.reply(552, "Requested file action aborted.")
}

// commandHandlers maps FTP commands to their handler functions.
// All handlers have the signature: func(s *session, arg string)
// Note: USER, PASS, QUIT, and NOOP are handled specially in handleCommand
var commandHandlers = map[string]func(*session, string){
	// File Management
	"CWD":  (*session).handleCWD,
	"XCWD": (*session).handleCWD,
	"CDUP": (*session).handleCDUP,
	"XCUP": (*session).handleCDUP,
	"UP":   (*session).handleCDUP,
	"PWD":  (*session).handlePWD,
	"XPWD": (*session).handlePWD,
	"LIST": (*session).handleLIST,
	"NLST": (*session).handleNLST,
	"MKD":  (*session).handleMKD,
	"XMKD": (*session).handleMKD,
	"RMD":  (*session).handleRMD,
	"XRMD": (*session).handleRMD,
	"DELE": (*session).handleDELE,
	"RNFR": (*session).handleRNFR,
	"RNTO": (*session).handleRNTO,

	// File Transfer
	"RETR": (*session).handleRETR,
	"STOR": (*session).handleSTOR,
	"APPE": (*session).handleAPPE,
	"STOU": (*session).handleSTOU,

	// Transfer Parameters
	"TYPE": (*session).handleTYPE,
	"PORT": (*session).handlePORT,
	"PASV": (*session).handlePASV,
	"EPSV": (*session).handleEPSV,
	"EPRT": (*session).handleEPRT,
	"REST": (*session).handleREST,

	// Information
	"SIZE": (*session).handleSIZE,
	"MDTM": (*session).handleMDTM,
	"FEAT": (*session).handleFEAT,
	"OPTS": (*session).handleOPTS,
	"MLSD": (*session).handleMLSD,
	"MLST": (*session).handleMLST,

	// Security (RFC 4217 explicit FTPS)
	"AUTH": (*session).handleAUTH,
	"PROT": (*session).handlePROT,
	"PBSZ": (*session).handlePBSZ,

	// RFC 1123 Compliance
	"ALLO": (*session).handleALLO,
	"ACCT": (*session).handleACCT,
	"MODE": (*session).handleMODE,
	"STRU": (*session).handleSTRU,
	"SYST": (*session).handleSYST,
	"STAT": (*session).handleSTAT,
	"HELP": (*session).handleHELP,
	"SITE": (*session).handleSITE,

	// Special
	"ABOR": (*session).handleABOR,
}

// validateActiveIP ensures the data connection target matches the control connection source.
// This prevents FTP bounce attacks.
func (s *session) validateActiveIP(ip net.IP) bool {
	remoteAddr := s.conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr // Fallback
	}

	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return false
	}

	return ip.Equal(remoteIP)
}

// generateSessionID generates a unique 8-character session ID.
func generateSessionID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%08x", b)
}

// redactPath returns the path with redaction applied if enabled.
func (s *session) redactPath(path string) string {
	return s.server.redactPath(path)
}

// redactIP returns the IP with redaction applied if enabled.
func (s *session) redactIP(ip string) string {
	return s.server.redactIP(ip)
}

// recordTelemetry writes this session's current command into the shared
// telemetry ring before dispatch, overwriting the slot assigned at connect
// time. Throughput fields are written as zero; RETR and STOR fill them in
// when their transfer completes.
func (s *session) recordTelemetry(cmd string) {
	if s.server.telemetryRing == nil {
		return
	}
	s.server.telemetryRing.Update(int(s.telemetrySlot), s.user, cmd, 0, 0)
}

// rateLimitReader wraps a reader with bandwidth limiting if configured.
// Applies both global and per-user limits (most restrictive wins).
func (s *session) rateLimitReader(r io.Reader) io.Reader {
	// Apply per-user limit
	if s.server.bandwidthLimitPerUser > 0 {
		limiter := ratelimit.New(s.server.bandwidthLimitPerUser)
		r = ratelimit.NewReader(r, limiter)
	}

	// Apply global limit (chains with per-user if both set)
	if s.server.globalLimiter != nil {
		r = ratelimit.NewReader(r, s.server.globalLimiter)
	}

	return r
}

// rateLimitWriter wraps a writer with bandwidth limiting if configured.
// Applies both global and per-user limits (most restrictive wins).
func (s *session) rateLimitWriter(w io.Writer) io.Writer {
	// Apply per-user limit
	if s.server.bandwidthLimitPerUser > 0 {
		limiter := ratelimit.New(s.server.bandwidthLimitPerUser)
		w = ratelimit.NewWriter(w, limiter)
	}

	// Apply global limit (chains with per-user if both set)
	if s.server.globalLimiter != nil {
		w = ratelimit.NewWriter(w, s.server.globalLimiter)
	}

	return w
}

// newSession creates a new session.
func newSession(server *Server, conn net.Conn) *session {
	// Generate unique session ID
	sessionID := generateSessionID()

	// Extract remote IP
	remoteAddr := conn.RemoteAddr().String()
	remoteIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		remoteIP = remoteAddr // Fallback to full address
	}

	tr := telnetReaderPool.Get().(*telnetReader)
	tr.Reset(conn)

	reader := controlReaderPool.Get().(*bufio.Reader)
	reader.Reset(tr)

	writer := controlWriterPool.Get().(*bufio.Writer)
	writer.Reset(conn)

	now := time.Now()
	s := &session{
		server:        server,
		conn:          conn,
		reader:        reader,
		writer:        writer,
		tnet:          tr,
		sessionID:     sessionID,
		remoteIP:      remoteIP,
		prot:          "C", // Default to clear
		transferType:  "I",
		cmdReqChan:    make(chan struct{}),
		connectedAt:   now,
		lastCommandAt: now,
	}

	// Detect Implicit TLS (connection is already a *tls.Conn)
	if _, ok := conn.(*tls.Conn); ok {
		s.prot = "P" // Default to private for implicit TLS
	}

	if server.telemetryRing != nil {
		s.telemetrySlot = server.acquireTelemetrySlot()
	}

	server.registerSession(s)

	return s
}

type command struct {
	line string
	err  error
}

// serve handles the FTP session. It uses a concurrent architecture to handle
// commands and data transfers, enabling support for commands like ABOR.
//
// Concurrency Model:
//
//  1. Reader Goroutine: A dedicated goroutine is spawned to read commands from
//     the client's control connection. It sends each command to the main `serve`
//     loop via the `cmdChan`.
//
//  2. Main Loop (`serve`): This loop receives commands from `cmdChan` and
//     dispatches them to handlers. It is the single point of control for the
//     session's state.
//
//  3. Synchronization (`cmdReqChan`): To prevent data races during connection
//     upgrades (e.g., AUTH TLS), the reader goroutine waits for a signal on
//     `cmdReqChan` before reading the next command. The main loop sends this
//     signal only after the current command handler has finished. This ensures
//     that handlers that modify the connection or reader/writer state (like
//     `handleAUTH`) can do so safely.
//
//  4. Transfers: Data transfer commands (RETR, STOR, etc.) copy the data
//     inline in their handler, so the main loop handles no other command
//     until the transfer has ended. The transfer handlers do not set the
//     `busy` flag or `transferCtx`.
//
//  5. Aborting Transfers (`ABOR`): Since the next command is read only after
//     a transfer has ended, ABOR finds no transfer in progress and replies
//     with 226. A transfer is cut short only by an error on its connections,
//     which the handler reports with 426.
//
//  6. State Protection (`s.mu`): A mutex protects session fields that are accessed
//     by multiple goroutines (e.g., `writer`, `conn`, `reader`, `busy`). This is
//     crucial because the main loop and the reader goroutine both interact
//     with the session's state.
//
//  7. Goroutine Cleanup (`done`): A `done` channel is created in `serve` and
//     closed on exit. The reader goroutine selects on this channel to ensure it
//     terminates when the session ends, preventing goroutine leaks.
func (s *session) serve() {
	defer s.close()

	s.sendWelcome()

	s.server.logger.Info("session_started",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
	)

	done := make(chan struct{})
	defer close(done)

	cmdChan := s.startCommandReader(done)

	for {
		cmd, ok := <-cmdChan
		if !ok {
			return
		}

		if cmd.err != nil {
			if cmd.err != io.EOF && cmd.err.Error() != "command too long" {
				s.server.logger.Warn("read error",
					"session_id", s.sessionID,
					"remote_ip", s.redactIP(s.remoteIP),
					"user", s.user,
					"error", cmd.err,
				)
			}
			if cmd.err.Error() == "command too long" {
				s.reply(500, "Command line too long.")
			}
			return
		}

		_ = s.conn.SetReadDeadline(time.Time{})

		if s.server.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
		}

		s.handleCommand(cmd.line)

		if s.server.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Time{})
		}

		select {
		case s.cmdReqChan <- struct{}{}:
		case <-time.After(1 * time.Second):
		}
	}
}

func (s *session) sendWelcome() {
	// A banner containing newlines becomes a multi-line 220 reply in the
	// "220-..." continuation form, terminated by "220 ...".
	if strings.Contains(s.server.welcomeMessage, "\n") {
		lines := strings.Split(strings.ReplaceAll(s.server.welcomeMessage, "\r\n", "\n"), "\n")
		s.mu.Lock()
		for i, line := range lines {
			if i == len(lines)-1 {
				fmt.Fprintf(s.writer, "220 %s\r\n", line)
			} else {
				fmt.Fprintf(s.writer, "220-%s\r\n", line)
			}
		}
		s.writer.Flush()
		s.mu.Unlock()
		return
	}
	if strings.HasPrefix(s.server.welcomeMessage, "220 ") {
		s.mu.Lock()
		fmt.Fprintf(s.writer, "%s\r\n", s.server.welcomeMessage)
		s.writer.Flush()
		s.mu.Unlock()
	} else if strings.HasPrefix(s.server.welcomeMessage, "220") {
		s.mu.Lock()
		fmt.Fprintf(s.writer, "220 %s\r\n", s.server.welcomeMessage[3:])
		s.writer.Flush()
		s.mu.Unlock()
	} else {
		s.reply(220, s.server.welcomeMessage)
	}
}

func (s *session) startCommandReader(done chan struct{}) chan command {
	cmdChan := make(chan command)
	go func() {
		defer close(cmdChan)
		for {
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()

			if s.server.readTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
			} else if s.server.maxIdleTime > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
			}

			line, err := s.readCommand()

			select {
			case cmdChan <- command{line, err}:
			case <-done:
				return
			}

			if err != nil {
				return
			}

			select {
			case <-s.cmdReqChan:
			case <-done:
				return
			}
		}
	}()
	return cmdChan
}

// readCommand reads a line from the reader with a limit.
func (s *session) readCommand() (string, error) {
	var line []byte
	for {
		// Protect reader access (needed because reader might be swapped by AUTH TLS)
		s.mu.Lock()
		r := s.reader
		s.mu.Unlock()

		b, err := r.ReadByte()
		if err != nil {
			return string(line), err
		}

		if len(line) >= MaxCommandLength {
			return "", fmt.Errorf("command too long")
		}

		if b == '\n' {
			return string(line), nil
		}
		line = append(line, b)
	}
}

// close closes the session and underlying connection.
func (s *session) close() {
	s.server.unregisterSession(s)

	if rec, ok := s.server.metricsCollector.(sessionCloseRecorder); ok {
		rec.RecordSessionClosed()
	}

	if s.server.telemetryRing != nil {
		s.server.releaseTelemetrySlot(s.telemetrySlot)
	}

	s.mu.Lock()
	if s.transferCancel != nil {
		s.transferCancel()
	}
	s.mu.Unlock()

	if s.fs != nil {
		s.fs.Close()
	}
	if s.pasvList != nil {
		s.pasvList.Close()
	}
	if s.pasvCh != nil {
		// An acceptor may have handed off a stream nobody will consume.
		select {
		case res := <-s.pasvCh:
			if res.conn != nil {
				res.conn.Close()
			}
		default:
		}
	}
	if s.dataConn != nil {
		s.dataConn.Close()
	}
	s.conn.Close()

	// Wait for all background transfers to finish before returning objects to the pool
	s.transferWG.Wait()

	// Return pooled objects
	if s.reader != nil {
		s.reader.Reset(nil)
		controlReaderPool.Put(s.reader)
		s.reader = nil
	}
	if s.writer != nil {
		s.writer.Reset(nil)
		controlWriterPool.Put(s.writer)
		s.writer = nil
	}
	if s.tnet != nil {
		s.tnet.Reset(nil)
		telnetReaderPool.Put(s.tnet)
		s.tnet = nil
	}

	s.server.logger.Debug("session closed",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
	)
}

// handleCommand parses and dispatches a command.
func (s *session) handleCommand(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}

	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	logArg := arg
	if cmd == "PASS" {
		logArg = "***"
	}
	s.server.logger.Debug("command received",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
		"cmd", cmd,
		"arg", logArg,
	)

	// A stashed RNFR source survives exactly one command: anything other
	// than RNTO drops it, so a later RNTO gets 503. This happens before
	// any refusal path so even a rejected command consumes the stash.
	if cmd != "RNTO" {
		s.renameFrom = ""
	}

	if s.server.disabledCommands[cmd] {
		s.reply(502, "Command not implemented.")
		return
	}

	s.lastCommandAt = time.Now()

	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()

	if busy && cmd != "ABOR" && cmd != "STAT" {
		s.reply(503, "Transfer in progress, please ABOR or wait.")
		return
	}

	// Every verb except this allow-list requires a prior successful
	// PASS. The gate lives here rather than per-handler.
	if !s.isLoggedIn {
		switch cmd {
		case "USER", "PASS", "QUIT", "NOOP", "FEAT", "SYST", "AUTH":
		default:
			s.reply(530, "Please login with USER and PASS.")
			return
		}
	}

	s.recordTelemetry(cmd)

	// Handle special commands that return errors
	var err error
	switch cmd {
	case "USER":
		err = s.handleUSER(arg)
	case "PASS":
		err = s.handlePASS(arg)
	case "QUIT":
		s.reply(221, "Service closing control connection.")
		// Ending the session is the server's job, not the client's: the
		// reader goroutine sees the close and the serve loop exits.
		s.conn.Close()
		return
	case "NOOP":
		s.reply(200, "OK.")
		return
	default:
		// Look up handler in command map
		if handler, ok := commandHandlers[cmd]; ok {
			handler(s, arg)
		} else {
			s.reply(502, "Command not implemented.")
		}
		return
	}

	if err != nil {
		s.server.logger.Error("command handling error",
			"session_id", s.sessionID,
			"remote_ip", s.redactIP(s.remoteIP),
			"user", s.user,
			"cmd", cmd,
			"error", err,
		)
	}
}

// pasvResult is what the detached PASV acceptor hands back to the session:
// the accepted stream, or the reason the accept failed.
type pasvResult struct {
	conn net.Conn
	err  error
}

// connData consumes the session's data channel, whichever mode set it up.
// The stream is single-use: both slots are reset before it is returned, so
// a second transfer verb without a new PASV/PORT gets 425.
func (s *session) connData() (net.Conn, error) {
	if s.pasvCh != nil {
		return s.connPassive()
	}

	if s.dataConn != nil {
		return s.connActive()
	}

	return nil, fmt.Errorf("no data connection setup")
}

func (s *session) connPassive() (net.Conn, error) {
	s.server.logger.Debug("waiting for passive connection",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
	)

	ch := s.pasvCh
	ln := s.pasvList
	s.pasvCh = nil
	s.pasvList = nil

	// The acceptor goroutine owns the listener; the client saw 227 before
	// this verb arrived, so in the common case the stream is already
	// buffered here. The timeout covers clients that never dial in.
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return s.wrapDataConn(res.conn)
	case <-time.After(10 * time.Second):
		if ln != nil {
			ln.Close()
		}
		// Reap a stream the acceptor may have produced in the race window.
		select {
		case res := <-ch:
			if res.conn != nil {
				res.conn.Close()
			}
		default:
		}
		return nil, fmt.Errorf("timed out waiting for passive data connection")
	}
}

func (s *session) connActive() (net.Conn, error) {
	conn := s.dataConn
	s.dataConn = nil
	return s.wrapDataConn(conn)
}

func (s *session) wrapDataConn(conn net.Conn) (net.Conn, error) {
	// Wrap in TLS if protected
	if s.prot == "P" {
		if s.server.tlsConfig == nil {
			conn.Close()
			return nil, fmt.Errorf("TLS configuration missing")
		}
		// RFC 4217: The FTP server MUST act as the TLS server.
		tlsConn := tls.Server(conn, s.server.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	// Apply timeouts to data connection
	if s.server.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
	}
	if s.server.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	}

	// Track data connection
	s.server.trackConnection(conn, true)
	return &trackingConn{Conn: conn, server: s.server}, nil
}

func (s *session) handleABOR(_ string) {
	s.mu.Lock()
	busy := s.busy
	dataConn := s.dataConn
	cancel := s.transferCancel
	s.mu.Unlock()

	if !busy {
		s.reply(226, "ABOR command successful; no transfer in progress.")
		return
	}

	// Transfer is in progress.
	s.server.logger.Info("transfer_abort_requested", "session_id", s.sessionID)

	// Close data connection to interrupt the background transfer goroutine.
	if dataConn != nil {
		dataConn.Close()
	}

	// Signal the transfer context to cancel.
	if cancel != nil {
		cancel()
	}

	// Only the 226 reply for ABOR is sent here; no 426 reply for the
	// interrupted transfer command is sent from this path.
	s.reply(226, "ABOR command successful; transfer aborted.")
}

// replyError sends a standard error response based on the error type.
func (s *session) replyError(err error) {
	var pathErr *ftpserver.PathError
	if errors.As(err, &pathErr) {
		s.reply(550, pathErr.Error()+".")
		return
	}
	if os.IsNotExist(err) {
		s.reply(550, "File not found.")
		return
	}
	if os.IsPermission(err) {
		s.reply(550, "Permission denied.")
		return
	}
	if os.IsExist(err) {
		s.reply(550, "File already exists.")
		return
	}
	s.reply(550, "Action failed: "+err.Error())
}

// reply sends a response to the client.
func (s *session) reply(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	s.writer.Flush()
}

// logTransfer logs a file transfer in standard xferlog format.
// Format: current-time transfer-time remote-host file-size filename transfer-type special-action-flag direction access-mode username service-name authentication-method authenticated-user-id completion-status
func (s *session) logTransfer(cmd, filename string, bytes int64, duration time.Duration) {
	if s.server.transferLog == nil {
		return
	}

	now := time.Now()
	transferTime := int64(duration.Seconds())
	if transferTime == 0 {
		transferTime = 1
	}

	// Remote host
	remoteHost := s.remoteIP

	// Transfer type: a (ascii), b (binary)
	tType := "b"
	if s.transferType == "A" {
		tType = "a"
	}

	// Special action flag: _ (none), C (compressed), U (uncompressed), T (tar)
	actionFlag := "_"

	// Direction: o (outgoing/download), i (incoming/upload)
	direction := "o"
	if cmd == "STOR" || cmd == "APPE" || cmd == "STOU" {
		direction = "i"
	}

	// Access mode: a (anonymous), g (guest), r (real user)
	accessMode := "r"
	if s.user == "anonymous" || s.user == "ftp" {
		accessMode = "a"
	}

	// Authentication method: 0 (none), 1 (rfc931 auth)
	authMethod := "0"

	// Authenticated user ID: * (not available)
	authUserID := "*"

	// Completion status: c (complete), i (incomplete)
	// We only log completed transfers for now
	completionStatus := "c"

	// Format line
	// Mon Dec 25 15:04:05 2025 1 127.0.0.1 1024 /file.txt b _ o a anonymous ftp 0 * c
	line := fmt.Sprintf("%s %d %s %d %s %s %s %s %s %s %s %s %s %s\n",
		now.Format("Mon Jan 02 15:04:05 2006"), // Manually mimicking ctime format
		transferTime,
		remoteHost,
		bytes,
		filename,
		tType,
		actionFlag,
		direction,
		accessMode,
		s.user,
		"ftp",
		authMethod,
		authUserID,
		completionStatus,
	)

	// Write to log (ignore errors)
	_, _ = s.server.transferLog.Write([]byte(line))
}
