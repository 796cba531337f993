package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rouilleftpd/rouilleftpd/internal/ftpserver"
)

// startServer runs a server on an ephemeral localhost port and tears it
// down with the test.
func startServer(t *testing.T, opts ...Option) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	addr := ln.Addr().String()

	srv, err := NewServer(addr, opts...)
	fatalIfErr(t, err, "new server")

	go func() {
		if err := srv.Serve(ln); err != nil && err != ErrServerClosed {
			t.Logf("server stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return addr
}

// vfsFixture provisions a chroot tree, an account directory, and a passwd
// store, the pieces a VFSDriver-backed server needs.
type vfsFixture struct {
	root    string
	userDir string
	passwds *ftpserver.PasswdStore
	driver  *VFSDriver
}

// newVFSFixture builds a fixture with the given username:password accounts
// already provisioned in the passwd store.
func newVFSFixture(t *testing.T, users map[string]string) *vfsFixture {
	t.Helper()

	root := t.TempDir()
	base := t.TempDir()
	userDir := filepath.Join(base, "users")
	fatalIfErr(t, os.MkdirAll(userDir, 0o755), "mkdir users")

	passwds, err := ftpserver.LoadPasswdStore(filepath.Join(base, "passwd"))
	fatalIfErr(t, err, "load passwd store")
	for user, pass := range users {
		fatalIfErr(t, passwds.SetPassword(user, pass), "set password for %s", user)
	}

	driver, err := NewVFSDriver(root, userDir, passwds, &Settings{})
	fatalIfErr(t, err, "new VFS driver")

	return &vfsFixture{root: root, userDir: userDir, passwds: passwds, driver: driver}
}

// testConn scripts a control-channel conversation: send a command, assert
// the reply code, optionally move file bytes over a data connection.
type testConn struct {
	t    *testing.T
	conn net.Conn
	tp   *textproto.Reader
}

// dialFTP connects to addr and consumes the greeting banner.
func dialFTP(t *testing.T, addr string) *testConn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	fatalIfErr(t, err, "dial control")
	t.Cleanup(func() { conn.Close() })

	tc := &testConn{t: t, conn: conn, tp: textproto.NewReader(bufio.NewReader(newTestReader(conn)))}
	tc.readReply()
	return tc
}

// newTestReader applies a read deadline so a stuck test fails instead of
// hanging.
func newTestReader(conn net.Conn) *deadlineReader {
	return &deadlineReader{conn: conn}
}

type deadlineReader struct {
	conn net.Conn
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	_ = r.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return r.conn.Read(p)
}

// readReply consumes one full reply, following "code-" continuations to
// the terminating "code " line.
func (tc *testConn) readReply() (int, string) {
	tc.t.Helper()

	line, err := tc.tp.ReadLine()
	fatalIfErr(tc.t, err, "read reply")
	full := line

	if len(line) >= 4 && line[3] == '-' {
		terminator := line[:3] + " "
		for {
			line, err = tc.tp.ReadLine()
			fatalIfErr(tc.t, err, "read reply continuation")
			full += "\n" + line
			if strings.HasPrefix(line, terminator) {
				break
			}
		}
	}

	code, _ := strconv.Atoi(full[:3])
	return code, full
}

// cmd sends one command line and returns the reply.
func (tc *testConn) cmd(format string, args ...interface{}) (int, string) {
	tc.t.Helper()
	fmt.Fprintf(tc.conn, format+"\r\n", args...)
	return tc.readReply()
}

// mustCmd sends a command and fails the test unless the reply code matches.
func (tc *testConn) mustCmd(wantCode int, format string, args ...interface{}) string {
	tc.t.Helper()
	code, msg := tc.cmd(format, args...)
	if code != wantCode {
		tc.t.Fatalf("%s: expected %d, got %d (%q)", fmt.Sprintf(format, args...), wantCode, code, msg)
	}
	return msg
}

func (tc *testConn) login(user, pass string) {
	tc.t.Helper()
	tc.mustCmd(331, "USER %s", user)
	tc.mustCmd(230, "PASS %s", pass)
}

// pasv negotiates passive mode and dials the advertised host-port.
func (tc *testConn) pasv() net.Conn {
	tc.t.Helper()

	msg := tc.mustCmd(227, "PASV")
	open := strings.Index(msg, "(")
	closing := strings.Index(msg, ")")
	if open < 0 || closing < open {
		tc.t.Fatalf("malformed PASV reply: %q", msg)
	}
	fields := strings.Split(msg[open+1:closing], ",")
	if len(fields) != 6 {
		tc.t.Fatalf("malformed PASV host-port: %q", msg)
	}
	nums := make([]int, 6)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		fatalIfErr(tc.t, err, "parse PASV field %q", f)
		nums[i] = n
	}

	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := nums[4]*256 + nums[5]

	dconn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 2*time.Second)
	fatalIfErr(tc.t, err, "dial data connection")
	return dconn
}

// stor uploads data to path over a fresh passive data connection and
// returns the final reply.
func (tc *testConn) stor(path, data string) (int, string) {
	tc.t.Helper()

	dconn := tc.pasv()
	code, msg := tc.cmd("STOR %s", path)
	if code != 150 {
		dconn.Close()
		return code, msg
	}
	_, err := io.WriteString(dconn, data)
	fatalIfErr(tc.t, err, "write upload data")
	dconn.Close()
	return tc.readReply()
}

// retr downloads path over a fresh passive data connection and returns the
// final reply plus the received bytes.
func (tc *testConn) retr(path string) (int, string, string) {
	tc.t.Helper()

	dconn := tc.pasv()
	code, msg := tc.cmd("RETR %s", path)
	if code != 150 {
		dconn.Close()
		return code, msg, ""
	}
	data, err := io.ReadAll(dconn)
	fatalIfErr(tc.t, err, "read download data")
	dconn.Close()
	code, msg = tc.readReply()
	return code, msg, string(data)
}

// list fetches a directory listing over a passive data connection.
func (tc *testConn) list(arg string) (int, string) {
	tc.t.Helper()

	dconn := tc.pasv()
	verb := "LIST"
	if arg != "" {
		verb = "LIST " + arg
	}
	code, msg := tc.cmd("%s", verb)
	if code != 150 {
		dconn.Close()
		tc.t.Fatalf("LIST: expected 150, got %d (%q)", code, msg)
	}
	data, err := io.ReadAll(dconn)
	fatalIfErr(tc.t, err, "read listing")
	dconn.Close()
	code, _ = tc.readReply()
	if code != 226 {
		tc.t.Fatalf("LIST: expected 226 after listing, got %d", code)
	}
	return code, string(data)
}
