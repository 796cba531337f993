package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVFSDriverAuthenticate(t *testing.T) {
	t.Parallel()
	fx := newVFSFixture(t, map[string]string{"alice": "secret1"})

	if _, err := fx.driver.Authenticate("alice", "secret1", ""); err != nil {
		t.Fatalf("valid credentials refused: %v", err)
	}
	if _, err := fx.driver.Authenticate("alice", "wrong", ""); err == nil {
		t.Error("wrong password accepted")
	}
	if _, err := fx.driver.Authenticate("nobody", "secret1", ""); err == nil {
		t.Error("unknown user accepted")
	}

	// Anonymous takes any non-empty password, case-insensitively.
	if _, err := fx.driver.Authenticate("Anonymous", "a@b", ""); err != nil {
		t.Errorf("anonymous refused: %v", err)
	}
	if _, err := fx.driver.Authenticate("anonymous", "", ""); err == nil {
		t.Error("anonymous with empty password accepted")
	}
}

func TestVFSDriverAddUserValidation(t *testing.T) {
	t.Parallel()
	fx := newVFSFixture(t, nil)

	cases := []struct {
		user, pass string
		wantErr    bool
	}{
		{"good1", "hunter2", false},
		{"A", "hunter2", false},                     // single char is fine
		{strings.Repeat("z", 32), "hunter2", false}, // max length
		{strings.Repeat("z", 33), "hunter2", true},  // too long
		{"", "hunter2", true},                       // empty
		{"with space", "hunter2", true},             // invalid char
		{"under_score", "hunter2", true},            // invalid char
		{"rouilleftpd", "hunter2", true},            // reserved
		{"ROUILLEFTPD", "hunter2", true},            // reserved, any case
		{"shortpw", "1234", true},                   // password too short
	}
	for _, c := range cases {
		err := fx.driver.AddUser(c.user, c.pass)
		if (err != nil) != c.wantErr {
			t.Errorf("AddUser(%q, %q): err = %v, wantErr = %v", c.user, c.pass, err, c.wantErr)
		}
	}

	// Second add of the same name reports the sentinel.
	if err := fx.driver.AddUser("good1", "hunter2"); err != ErrUserExists {
		t.Errorf("duplicate AddUser: expected ErrUserExists, got %v", err)
	}
}

func TestVFSDriverDeleteKeepsFile(t *testing.T) {
	t.Parallel()
	fx := newVFSFixture(t, nil)

	fatalIfErr(t, fx.driver.AddUser("mark", "hunter2"), "add user")
	fatalIfErr(t, fx.driver.DeleteUser("mark"), "delete user")

	if _, err := os.Stat(filepath.Join(fx.userDir, "mark.user")); err != nil {
		t.Fatalf("user file removed instead of flagged: %v", err)
	}

	// Deleting twice is a no-op, not an error.
	fatalIfErr(t, fx.driver.DeleteUser("mark"), "delete user again")

	names, err := fx.driver.ListUsers()
	fatalIfErr(t, err, "list users")
	for _, n := range names {
		if n == "mark" {
			t.Error("deleted user still listed")
		}
	}
}

func TestVFSContextIsolation(t *testing.T) {
	t.Parallel()
	fx := newVFSFixture(t, map[string]string{"nora": "secret1"})

	ctx, err := fx.driver.Authenticate("nora", "secret1", "")
	fatalIfErr(t, err, "authenticate")

	// CWD clamps at the virtual root.
	if err := ctx.ChangeDir(".."); err == nil {
		wd, _ := ctx.GetWd()
		if wd != "/" {
			t.Errorf("CWD ..: escaped to %q", wd)
		}
	}

	// A write lands inside the jail.
	f, err := ctx.OpenFile("/dir-less.txt", os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	fatalIfErr(t, err, "open for write")
	_, _ = f.Write([]byte("x"))
	f.Close()
	if _, err := os.Stat(filepath.Join(fx.root, "dir-less.txt")); err != nil {
		t.Errorf("file not created inside jail: %v", err)
	}

	// Intermediate missing directories fail rather than get created.
	if _, err := ctx.OpenFile("/no/such/dir/file.txt", os.O_WRONLY|os.O_CREATE); err == nil {
		t.Error("open through missing directories succeeded")
	}
}
