package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rouilleftpd/rouilleftpd/internal/ftpserver"
	"golang.org/x/crypto/bcrypt"
)

// VFSDriver implements Driver for the glFTPd-style shared site tree: every
// user is chrooted to the same rootPath (no per-user home split), verified
// in userspace via ftpserver.Resolve rather than relying on OS-level
// jailing, and authenticated against a PasswdStore plus the DELETED flag
// carried in each user's UserFile.
//
// The driver trusts no kernel-enforced root handle: every path a
// ClientContext touches is re-validated against rootPath on every call,
// which is what lets SITE ADDUSER/DELUSER/ADDIP mutate the backing
// ftp-data/users tree without the driver needing to reopen a root handle
// per account.
type VFSDriver struct {
	rootPath  string
	userDir   string // ftp-data/users, holds <name>.user files
	passwds   *ftpserver.PasswdStore
	settings  *Settings
	userFiles *ftpserver.UserFileCache
}

// NewVFSDriver builds a VFSDriver rooted at rootPath, authenticating
// against passwds and reading per-user flags from userDir.
func NewVFSDriver(rootPath, userDir string, passwds *ftpserver.PasswdStore, settings *Settings) (*VFSDriver, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}
	rootPath, err = filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	return &VFSDriver{
		rootPath:  rootPath,
		userDir:   userDir,
		passwds:   passwds,
		settings:  settings,
		userFiles: ftpserver.NewUserFileCache(ftpserver.DefaultUserFileTTL),
	}, nil
}

// Authenticate implements the USER/PASS flow: anonymous
// (case-insensitive) accepts any non-empty password as an email address;
// named users are verified against the passwd store, then rejected if
// their UserFile carries the DELETED flag.
func (d *VFSDriver) Authenticate(user, pass, host string) (ClientContext, error) {
	lower := strings.ToLower(user)
	if lower == "anonymous" {
		if pass == "" {
			return nil, errors.New("anonymous login requires an email address")
		}
		return d.newContext(user), nil
	}

	if err := d.passwds.Verify(user, pass); err != nil {
		return nil, os.ErrPermission
	}

	if uf, err := d.userFiles.Get(d.userFilePath(user)); err == nil {
		if isDeletedFlag(uf.Flags) {
			return nil, os.ErrPermission
		}
	}

	return d.newContext(user), nil
}

func (d *VFSDriver) userFilePath(user string) string {
	return filepath.Join(d.userDir, user+".user")
}

func isDeletedFlag(flags string) bool {
	return strings.ContainsRune(flags, '6')
}

// reservedUsername is the server's own identity; SITE ADDUSER must never
// shadow it.
const reservedUsername = "rouilleftpd"

// ErrUserExists is returned by AddUser when the passwd store already
// holds the username.
var ErrUserExists = errors.New("user already exists")

// AddUser implements SITE ADDUSER: creates a passwd entry and a fresh
// UserFile, refusing to overwrite an existing account or shadow the
// reserved server identity.
func (d *VFSDriver) AddUser(username, password string) error {
	if !ftpserver.IsValidUsername(username) {
		return errors.New("invalid username")
	}
	if strings.EqualFold(username, reservedUsername) {
		return errors.New("username is reserved")
	}
	if d.passwds.Has(username) {
		return ErrUserExists
	}
	if !ftpserver.IsValidPassword(password) {
		return errors.New("invalid password")
	}

	if err := d.passwds.SetPassword(username, password); err != nil {
		return err
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hashed := string(hashedBytes)

	uf := &ftpserver.UserFile{
		Username: username,
		Password: hashed,
		Ratio:    "1:0",
		Added:    time.Now().UTC().Format("20060102150405"),
	}
	if err := ftpserver.WriteUserFile(d.userFilePath(username), uf); err != nil {
		return err
	}
	d.userFiles.Invalidate(d.userFilePath(username))
	return nil
}

// DeleteUser implements SITE DELUSER: marks the UserFile DELETED without
// removing it, so the account history survives.
func (d *VFSDriver) DeleteUser(username string) error {
	uf, err := ftpserver.ParseUserFile(d.userFilePath(username))
	if err != nil {
		return err
	}
	if isDeletedFlag(uf.Flags) {
		return nil
	}
	uf.Flags += "6"

	tmp := d.userFilePath(username) + ".tmp"
	if err := ftpserver.WriteUserFile(tmp, uf); err != nil {
		return err
	}
	if err := os.Rename(tmp, d.userFilePath(username)); err != nil {
		return err
	}
	d.userFiles.Invalidate(d.userFilePath(username))
	return nil
}

// maxAddIPEntries bounds a single SITE ADDIP/DELIP call.
const maxAddIPEntries = 10

// AddIPs implements SITE ADDIP, appending ident@host masks to a user's
// file after validating each and the call-wide entry limit.
func (d *VFSDriver) AddIPs(username string, masks []string) error {
	if len(masks) == 0 || len(masks) > maxAddIPEntries {
		return errors.New("invalid number of IP masks")
	}
	for _, m := range masks {
		if !ftpserver.IsValidIdentIP(m) {
			return fmt.Errorf("invalid ident@host mask: %s", m)
		}
	}
	if err := ftpserver.AppendIPMasks(d.userFilePath(username), masks); err != nil {
		return err
	}
	d.userFiles.Invalidate(d.userFilePath(username))
	return nil
}

// DelIPs implements SITE DELIP, removing matching ident@host masks from a
// user's file.
func (d *VFSDriver) DelIPs(username string, masks []string) error {
	if len(masks) == 0 || len(masks) > maxAddIPEntries {
		return errors.New("invalid number of IP masks")
	}
	path := d.userFilePath(username)
	uf, err := ftpserver.ParseUserFile(path)
	if err != nil {
		return err
	}

	toRemove := make(map[string]bool, len(masks))
	for _, m := range masks {
		toRemove[m] = true
	}

	kept := uf.IPMasks[:0]
	for _, existing := range uf.IPMasks {
		if !toRemove[existing] {
			kept = append(kept, existing)
		}
	}
	uf.IPMasks = kept

	tmp := path + ".tmp"
	if err := ftpserver.WriteUserFile(tmp, uf); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	d.userFiles.Invalidate(path)
	return nil
}

// UserReport implements SITE USER <name>, returning the parsed UserFile.
func (d *VFSDriver) UserReport(username string) (*ftpserver.UserFile, error) {
	return d.userFiles.Get(d.userFilePath(username))
}

// NewFileEntry describes a recently modified file under the site root, as
// reported by SITE NEW.
type NewFileEntry struct {
	VirtualPath string
	ModTime     time.Time
	Size        int64
}

// maxNewFiles caps how many entries SITE NEW reports.
const maxNewFiles = 10

// ListNewest walks the site tree and returns the most recently modified
// regular files, newest first, bounded by maxNewFiles.
func (d *VFSDriver) ListNewest() ([]NewFileEntry, error) {
	var entries []NewFileEntry

	err := filepath.WalkDir(d.rootPath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		virtual, err := ftpserver.VirtualPath(d.rootPath, path)
		if err != nil {
			return nil
		}
		entries = append(entries, NewFileEntry{VirtualPath: virtual, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	if len(entries) > maxNewFiles {
		entries = entries[:maxNewFiles]
	}
	return entries, nil
}

// ListUsers implements SITE USER with no argument: every non-deleted
// account under userDir.
func (d *VFSDriver) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(d.userDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".user") {
			continue
		}
		username := strings.TrimSuffix(entry.Name(), ".user")
		uf, err := d.userFiles.Get(filepath.Join(d.userDir, entry.Name()))
		if err != nil || isDeletedFlag(uf.Flags) {
			continue
		}
		names = append(names, username)
	}
	return names, nil
}

func (d *VFSDriver) newContext(user string) *vfsContext {
	return &vfsContext{
		rootPath: d.rootPath,
		cwd:      "/",
		user:     user,
		settings: d.settings,
	}
}

// vfsContext implements ClientContext by resolving every virtual path
// through ftpserver.Resolve against a shared root, re-validated on every
// call rather than cached behind an os.Root handle.
type vfsContext struct {
	rootPath string
	cwd      string
	user     string
	settings *Settings
}

func (c *vfsContext) resolve(path string) (string, error) {
	return ftpserver.Resolve(c.rootPath, c.cwd, path)
}

func (c *vfsContext) ChangeDir(path string) error {
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(real)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	virtual, err := ftpserver.VirtualPath(c.rootPath, real)
	if err != nil {
		return err
	}
	c.cwd = virtual
	return nil
}

func (c *vfsContext) GetWd() (string, error) {
	return c.cwd, nil
}

func (c *vfsContext) MakeDir(path string) error {
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Mkdir(real, 0755)
}

func (c *vfsContext) RemoveDir(path string) error {
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(real)
}

func (c *vfsContext) DeleteFile(path string) error {
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(real)
}

func (c *vfsContext) Rename(fromPath, toPath string) error {
	src, err := c.resolve(fromPath)
	if err != nil {
		return err
	}
	dst, err := c.resolve(toPath)
	if err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (c *vfsContext) ListDir(path string) ([]os.FileInfo, error) {
	real, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(real)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err == nil {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (c *vfsContext) OpenFile(path string, flag int) (io.ReadWriteCloser, error) {
	real, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(real, flag, 0644)
}

func (c *vfsContext) GetFileInfo(path string) (os.FileInfo, error) {
	real, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(real)
}

func (c *vfsContext) SetTime(path string, t time.Time) error {
	return c.SetTimes(path, t, t)
}

func (c *vfsContext) SetTimes(path string, atime, mtime time.Time) error {
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Chtimes(real, atime, mtime)
}

func (c *vfsContext) Chmod(path string, mode os.FileMode) error {
	if mode > 0777 {
		return os.ErrInvalid
	}
	real, err := c.resolve(path)
	if err != nil {
		return err
	}
	return os.Chmod(real, mode)
}

func (c *vfsContext) Close() error {
	return nil
}

func (c *vfsContext) GetSettings() *Settings {
	if c.settings == nil {
		return &Settings{}
	}
	return c.settings
}
