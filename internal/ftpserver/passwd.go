package ftpserver

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoSuchUser is returned when a username has no passwd entry.
var ErrNoSuchUser = errors.New("no such user")

// ErrBadPassword is returned when a password fails to verify.
var ErrBadPassword = errors.New("incorrect password")

// PasswdStore is an in-memory, mutex-guarded view of a flat
// "username:bcrypt-hash" file, the credential half of account storage
// (the glFTPd-style per-user flags/quota/ratio record lives separately
// in UserFile).
type PasswdStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// LoadPasswdStore reads path into memory. A missing file is treated as an
// empty store so the server can start before any user is provisioned.
func LoadPasswdStore(path string) (*PasswdStore, error) {
	store := &PasswdStore{path: path, entries: make(map[string]string)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		store.entries[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return store, nil
}

// Verify checks password against the stored bcrypt hash for username.
func (s *PasswdStore) Verify(username, password string) error {
	s.mu.RLock()
	hash, ok := s.entries[username]
	s.mu.RUnlock()
	if !ok {
		return ErrNoSuchUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// SetPassword hashes password with bcrypt and installs it for username,
// persisting the updated store to disk.
func (s *PasswdStore) SetPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[username] = string(hash)
	s.mu.Unlock()

	return s.save()
}

// DeleteUser removes a user's credential entry and persists the store.
func (s *PasswdStore) DeleteUser(username string) error {
	s.mu.Lock()
	delete(s.entries, username)
	s.mu.Unlock()
	return s.save()
}

// Has reports whether username has a credential entry.
func (s *PasswdStore) Has(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[username]
	return ok
}

func (s *PasswdStore) save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for user, hash := range s.entries {
		fmt.Fprintf(w, "%s:%s\n", user, hash)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
