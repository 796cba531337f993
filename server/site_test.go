package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rouilleftpd/rouilleftpd/internal/ftpserver"
)

func siteFixture(t *testing.T) (*vfsFixture, *testConn) {
	t.Helper()
	fx := newVFSFixture(t, map[string]string{"admin": "secret1"})
	mgr := newTestQuotaManager(t, 10*1024*1024, "1:1")
	addr := startServer(t, WithDriver(fx.driver), WithQuotaManager(mgr))
	tc := dialFTP(t, addr)
	tc.login("admin", "secret1")
	return fx, tc
}

func TestSiteAdduser(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	tc.mustCmd(200, "SITE ADDUSER newguy hunter2")

	// The account file exists and carries the USER line.
	uf, err := ftpserver.ParseUserFile(filepath.Join(fx.userDir, "newguy.user"))
	fatalIfErr(t, err, "parse created user file")
	if uf.Username != "newguy" {
		t.Errorf("user file: expected newguy, got %q", uf.Username)
	}

	// The new account can log in.
	if err := fx.passwds.Verify("newguy", "hunter2"); err != nil {
		t.Errorf("passwd store: new user does not verify: %v", err)
	}

	// Duplicates, the reserved name, and bad usernames are refused.
	if code, _ := tc.cmd("SITE ADDUSER newguy other5"); code != 550 {
		t.Error("duplicate ADDUSER: expected 550")
	}
	if code, _ := tc.cmd("SITE ADDUSER rouilleftpd pass5"); code != 550 {
		t.Error("reserved ADDUSER: expected 550")
	}
	if code, _ := tc.cmd("SITE ADDUSER bad..name pass5"); code != 550 {
		t.Error("invalid-name ADDUSER: expected 550")
	}
	if code, _ := tc.cmd("SITE ADDUSER onlyname"); code != 501 {
		t.Error("ADDUSER missing password: expected 501")
	}
}

func TestSiteDeluser(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	tc.mustCmd(200, "SITE ADDUSER victim hunter2")
	tc.mustCmd(200, "SITE DELUSER victim")

	// The file is marked, not removed.
	uf, err := ftpserver.ParseUserFile(filepath.Join(fx.userDir, "victim.user"))
	fatalIfErr(t, err, "parse deleted user file")
	if !strings.ContainsRune(uf.Flags, '6') {
		t.Errorf("deleted user: expected flag 6, got %q", uf.Flags)
	}

	// Deleted accounts cannot log in even with the right password.
	if _, err := fx.driver.Authenticate("victim", "hunter2", ""); err == nil {
		t.Error("deleted user still authenticates")
	}

	// And SITE USER no longer lists them.
	msg := tc.mustCmd(200, "SITE USER")
	if strings.Contains(msg, "victim") {
		t.Errorf("SITE USER lists deleted account: %q", msg)
	}
}

func TestSiteAddipDelip(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	tc.mustCmd(200, "SITE ADDUSER walt hunter2")
	tc.mustCmd(200, "SITE ADDIP walt walt@10.0.0.1 walt@ftp.example.org")

	uf, err := ftpserver.ParseUserFile(filepath.Join(fx.userDir, "walt.user"))
	fatalIfErr(t, err, "parse user file")
	if len(uf.IPMasks) != 2 {
		t.Fatalf("IP masks: expected 2, got %v", uf.IPMasks)
	}

	// Malformed masks are refused.
	if code, _ := tc.cmd("SITE ADDIP walt notanidentip"); code != 501 {
		t.Error("malformed ADDIP: expected 501")
	}

	// More than 10 masks in one call are refused.
	many := make([]string, 11)
	for i := range many {
		many[i] = "walt@10.0.1." + string(rune('0'+i%10))
	}
	if code, _ := tc.cmd("SITE ADDIP walt %s", strings.Join(many, " ")); code != 501 {
		t.Error("oversized ADDIP: expected 501")
	}

	tc.mustCmd(200, "SITE DELIP walt walt@10.0.0.1")
	uf, err = ftpserver.ParseUserFile(filepath.Join(fx.userDir, "walt.user"))
	fatalIfErr(t, err, "reparse user file")
	if len(uf.IPMasks) != 1 || uf.IPMasks[0] != "walt@ftp.example.org" {
		t.Errorf("after DELIP: expected only the hostname mask, got %v", uf.IPMasks)
	}
}

func TestSiteUserReport(t *testing.T) {
	t.Parallel()
	_, tc := siteFixture(t)

	tc.mustCmd(200, "SITE ADDUSER xena hunter2")

	msg := tc.mustCmd(200, "SITE USER xena")
	if !strings.Contains(msg, "xena") {
		t.Errorf("SITE USER report: expected username, got %q", msg)
	}
	if !strings.Contains(msg, "Ratio") {
		t.Errorf("SITE USER report: expected Ratio line, got %q", msg)
	}

	listing := tc.mustCmd(200, "SITE USER")
	if !strings.Contains(listing, "xena") {
		t.Errorf("SITE USER listing: expected xena, got %q", listing)
	}
}

func TestSiteQuotaRatio(t *testing.T) {
	t.Parallel()
	_, tc := siteFixture(t)

	tc.mustCmd(200, "SITE QUOTA yuri 1048576")
	msg := tc.mustCmd(200, "SITE QUOTA yuri")
	if !strings.Contains(msg, "1.00MB") {
		t.Errorf("SITE QUOTA report: expected 1.00MB cap, got %q", msg)
	}

	tc.mustCmd(200, "SITE RATIO yuri 1:3")
	msg = tc.mustCmd(200, "SITE RATIO yuri")
	if !strings.Contains(msg, "1:3") {
		t.Errorf("SITE RATIO report: expected 1:3, got %q", msg)
	}

	if code, _ := tc.cmd("SITE RATIO yuri nonsense"); code != 501 {
		t.Error("bad ratio: expected 501")
	}
	if code, _ := tc.cmd("SITE QUOTA"); code != 501 {
		t.Error("QUOTA without user: expected 501")
	}

	tc.mustCmd(200, "SITE GROUP staff 2097152")
	msg = tc.mustCmd(200, "SITE GROUP staff")
	if !strings.Contains(msg, "2097152") {
		t.Errorf("SITE GROUP report: expected byte cap, got %q", msg)
	}
}

func TestSiteChmod(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	target := filepath.Join(fx.root, "mode.txt")
	fatalIfErr(t, os.WriteFile(target, []byte("x"), 0o644), "write target")

	tc.mustCmd(200, "SITE CHMOD 600 mode.txt")
	info, err := os.Stat(target)
	fatalIfErr(t, err, "stat target")
	if info.Mode().Perm() != 0o600 {
		t.Errorf("chmod: expected 0600, got %o", info.Mode().Perm())
	}

	if code, _ := tc.cmd("SITE CHMOD 999 mode.txt"); code != 501 {
		t.Error("invalid octal mode: expected 501")
	}
	if code, _ := tc.cmd("SITE CHMOD 600"); code != 501 {
		t.Error("CHMOD without path: expected 501")
	}
}

func TestSiteUtime(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	target := filepath.Join(fx.root, "stamp.txt")
	fatalIfErr(t, os.WriteFile(target, []byte("x"), 0o644), "write target")

	tc.mustCmd(200, "SITE UTIME stamp.txt 20240301101500 20240302111600 20240303121700 UTC")

	info, err := os.Stat(target)
	fatalIfErr(t, err, "stat target")
	want := time.Date(2024, 3, 2, 11, 16, 0, 0, time.UTC)
	if !info.ModTime().UTC().Equal(want) {
		t.Errorf("mtime: expected %v, got %v", want, info.ModTime().UTC())
	}

	if code, _ := tc.cmd("SITE UTIME stamp.txt 20240301101500 20240302111600"); code != 501 {
		t.Error("UTIME with missing args: expected 501")
	}
	if code, _ := tc.cmd("SITE UTIME stamp.txt notatime 20240302111600 20240303121700 UTC"); code != 501 {
		t.Error("UTIME with bad timestamp: expected 501")
	}
}

func TestSiteWhoIdleNew(t *testing.T) {
	t.Parallel()
	fx, tc := siteFixture(t)

	fatalIfErr(t, os.WriteFile(filepath.Join(fx.root, "fresh.txt"), []byte("new release"), 0o644), "write file")

	msg := tc.mustCmd(200, "SITE WHO")
	if !strings.Contains(msg, "admin") {
		t.Errorf("SITE WHO: expected admin in listing, got %q", msg)
	}

	msg = tc.mustCmd(200, "SITE IDLE")
	if !strings.Contains(msg, "Idle time") {
		t.Errorf("SITE IDLE: unexpected reply %q", msg)
	}

	msg = tc.mustCmd(200, "SITE NEW")
	if !strings.Contains(msg, "/fresh.txt") {
		t.Errorf("SITE NEW: expected /fresh.txt, got %q", msg)
	}
}

func TestSiteUnknownAndHelp(t *testing.T) {
	t.Parallel()
	_, tc := siteFixture(t)

	if code, _ := tc.cmd("SITE BOGUS"); code != 502 {
		t.Error("unknown SITE subcommand: expected 502")
	}
	if code, _ := tc.cmd("SITE"); code != 501 {
		t.Error("bare SITE: expected 501")
	}
	if code, _ := tc.cmd("SITE HELP"); code != 214 {
		t.Error("SITE HELP: expected 214")
	}
}
