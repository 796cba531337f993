package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestServerIntegration walks the basic login/PWD/transfer conversation
// end to end against a VFS-backed server.
func TestServerIntegration(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, map[string]string{"alice": "secret1"})
	addr := startServer(t,
		WithDriver(fx.driver),
		WithWelcomeMessage("rouilleftpd ready.\nMind the ratio."),
	)

	tc := dialFTP(t, addr)
	tc.login("alice", "secret1")

	msg := tc.mustCmd(257, "PWD")
	if !strings.Contains(msg, `"/"`) {
		t.Errorf(`PWD: expected quoted "/" in reply, got %q`, msg)
	}

	// R1: a stored byte stream comes back unchanged.
	payload := "The quick brown fox\r\njumps over the lazy dog\n\x00\x01\x02"
	tc.mustCmd(200, "TYPE I")
	if code, msg := tc.stor("roundtrip.bin", payload); code != 226 {
		t.Fatalf("STOR: expected 226, got %d (%q)", code, msg)
	}
	code, _, got := tc.retr("roundtrip.bin")
	if code != 226 {
		t.Fatalf("RETR: expected 226, got %d", code)
	}
	if got != payload {
		t.Errorf("RETR: expected %q, got %q", payload, got)
	}

	// R2: rename shows up in the listing under the new name only.
	tc.mustCmd(350, "RNFR roundtrip.bin")
	tc.mustCmd(250, "RNTO renamed.bin")
	_, listing := tc.list("")
	if !strings.Contains(listing, "renamed.bin") {
		t.Errorf("LIST: expected renamed.bin in listing, got %q", listing)
	}
	if strings.Contains(listing, "roundtrip.bin") {
		t.Errorf("LIST: old name still present in listing: %q", listing)
	}

	tc.mustCmd(221, "QUIT")
}

// TestMultilineBanner verifies the greeting uses the "220-" continuation
// form terminated by a "220 " line.
func TestMultilineBanner(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, nil)
	addr := startServer(t,
		WithDriver(fx.driver),
		WithWelcomeMessage("line one\nline two\nline three"),
	)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	fatalIfErr(t, err, "dial")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	fatalIfErr(t, err, "read banner")
	banner := string(buf[:n])

	if !strings.HasPrefix(banner, "220-line one\r\n") {
		t.Errorf("banner: expected 220- continuation start, got %q", banner)
	}
	if !strings.Contains(banner, "220 line three\r\n") {
		t.Errorf("banner: expected terminating 220 line, got %q", banner)
	}
}

// TestAnonymousLogin exercises the email-as-password anonymous flow.
func TestAnonymousLogin(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, nil)
	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.mustCmd(331, "USER AnOnYmOuS")
	tc.mustCmd(230, "PASS someone@example.org")
	tc.mustCmd(257, "PWD")
	tc.mustCmd(221, "QUIT")
}

// TestAnonymousLoginRejectsEmptyPassword: the email-as-password flow
// requires a non-empty password.
func TestAnonymousLoginRejectsEmptyPassword(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, nil)
	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.mustCmd(331, "USER anonymous")
	tc.mustCmd(530, "PASS")
}

// TestBadPassword: a wrong password for a provisioned account is refused,
// and the session survives to try again.
func TestBadPassword(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, map[string]string{"bob": "correct1"})
	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.mustCmd(331, "USER bob")
	tc.mustCmd(530, "PASS wrong")
	tc.login("bob", "correct1")
}

// TestServerActiveMode transfers a file with the server dialing out to a
// client-side listener (PORT).
func TestServerActiveMode(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, map[string]string{"carol": "secret1"})
	fatalIfErr(t, os.WriteFile(filepath.Join(fx.root, "active.txt"), []byte("active mode payload"), 0o644), "write fixture")

	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.login("carol", "secret1")

	// Client-side data listener the server will dial into.
	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "data listen")
	defer dataLn.Close()

	_, portStr, _ := net.SplitHostPort(dataLn.Addr().String())
	port := 0
	fmt.Sscanf(portStr, "%d", &port)

	// PORT replies 200 only once the outbound dial has succeeded.
	tc.mustCmd(200, "PORT 127,0,0,1,%d,%d", port/256, port%256)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := dataLn.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	code, _ := tc.cmd("RETR active.txt")
	if code != 150 {
		t.Fatalf("RETR: expected 150, got %d", code)
	}

	var dconn net.Conn
	select {
	case dconn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never dialed the advertised endpoint")
	}
	defer dconn.Close()

	_ = dconn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _ := dconn.Read(buf)
	if string(buf[:n]) != "active mode payload" {
		t.Errorf("active RETR: expected payload, got %q", string(buf[:n]))
	}

	code, _ = tc.readReply()
	if code != 226 {
		t.Errorf("RETR: expected 226 completion, got %d", code)
	}
}

// TestPortRefusedWhenUnreachable: PORT to a dead endpoint reports 425
// instead of deferring the failure to the transfer verb.
func TestPortRefusedWhenUnreachable(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, map[string]string{"dave": "secret1"})
	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.login("dave", "secret1")

	// Grab a port, then close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port := 0
	fmt.Sscanf(portStr, "%d", &port)

	tc.mustCmd(425, "PORT 127,0,0,1,%d,%d", port/256, port%256)
}

// TestTransferWithoutDataChannel: a transfer verb with no PASV/PORT setup
// replies 425.
func TestTransferWithoutDataChannel(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, map[string]string{"erin": "secret1"})
	addr := startServer(t, WithDriver(fx.driver))

	tc := dialFTP(t, addr)
	tc.login("erin", "secret1")
	tc.mustCmd(425, "RETR whatever.txt")
}

// TestServerShutdown: a graceful shutdown stops accepting connections and
// unblocks once sessions are gone.
func TestServerShutdown(t *testing.T) {
	t.Parallel()

	fx := newVFSFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	addr := ln.Addr().String()

	srv, err := NewServer(addr, WithDriver(fx.driver))
	fatalIfErr(t, err, "new server")

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	tc := dialFTP(t, addr)
	tc.mustCmd(331, "USER anonymous")
	tc.mustCmd(221, "QUIT")
	tc.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-served:
		if err != ErrServerClosed {
			t.Errorf("Serve: expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Error("server still accepting connections after Shutdown")
	}
}
