package ftpserver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathErrorKind classifies a failure from Resolve.
type PathErrorKind int

const (
	// PathOutsideChroot means the resolved path would escape base, whether
	// via ".." components or a symlink pointing outside the jail.
	PathOutsideChroot PathErrorKind = iota
	// PathNotFound means a path component does not exist.
	PathNotFound
	// PathNotADirectory means a non-final path component is not a directory.
	PathNotADirectory
	// PathPermissionDenied means the filesystem denied access while resolving.
	PathPermissionDenied
	// PathSymlinkLoop means symlink resolution exceeded maxSymlinkHops hops.
	PathSymlinkLoop
)

// PathError is returned by Resolve. It never carries an absolute filesystem
// path, so it is safe to send back to a client verbatim without leaking the
// real on-disk layout.
type PathError struct {
	Kind PathErrorKind
	Op   string
}

func (e *PathError) Error() string {
	switch e.Kind {
	case PathOutsideChroot:
		return "path escapes home directory"
	case PathNotFound:
		return "no such file or directory"
	case PathNotADirectory:
		return "not a directory"
	case PathPermissionDenied:
		return "permission denied"
	case PathSymlinkLoop:
		return "too many levels of symbolic links"
	default:
		return "path resolution failed"
	}
}

const maxSymlinkHops = 32

// Resolve maps a client-supplied FTP path argument to a real filesystem
// path, enforcing a userspace chroot rooted at base.
//
// arg may be absolute (interpreted relative to the virtual root "/") or
// relative (interpreted relative to currentDir, itself a virtual path
// rooted at "/"). The result is always guaranteed to lie within base: ".."
// components cannot walk above the virtual root, and every symlink
// encountered while walking the path — including the final component — is
// resolved and re-checked against base, so a symlink planted inside the
// tree cannot be used to point outside of it. Resolve does not require the
// final component to exist, so it can be used to validate destination
// paths for STOR, MKD, and RNTO.
//
// The returned path is always an absolute, symlink-free filesystem path.
func Resolve(base, currentDir, arg string) (string, error) {
	virtual := virtualJoin(currentDir, arg)

	parts := strings.Split(virtual, "/")
	real := base
	hops := 0

	for i, part := range parts {
		if part == "" || part == "." {
			continue
		}

		candidate := filepath.Join(real, part)
		isFinal := i == len(parts)-1

		resolved, err := resolveSymlinks(candidate, base, &hops)
		if err != nil {
			var pathErr *PathError
			if errors.As(err, &pathErr) {
				return "", err
			}
			if os.IsNotExist(err) {
				if isFinal {
					// Final component may legitimately not exist yet
					// (upload destination, new directory name).
					real = candidate
					continue
				}
				return "", &PathError{Kind: PathNotFound, Op: "resolve"}
			}
			if os.IsPermission(err) {
				return "", &PathError{Kind: PathPermissionDenied, Op: "resolve"}
			}
			return "", &PathError{Kind: PathNotFound, Op: "resolve"}
		}

		if !isFinal {
			info, statErr := os.Lstat(resolved)
			if statErr == nil && !info.IsDir() {
				return "", &PathError{Kind: PathNotADirectory, Op: "resolve"}
			}
		}

		real = resolved
	}

	if !withinBase(real, base) {
		return "", &PathError{Kind: PathOutsideChroot, Op: "resolve"}
	}

	return real, nil
}

// virtualJoin resolves arg against currentDir in the virtual ("/"-rooted)
// namespace, collapsing ".." and "." without touching the filesystem.
func virtualJoin(currentDir, arg string) string {
	if !strings.HasPrefix(arg, "/") {
		arg = filepath.Join(currentDir, arg)
	}
	cleaned := filepath.Clean("/" + arg)
	return cleaned
}

// resolveSymlinks follows candidate's symlink chain (if any), bounding the
// number of hops across the whole path walk via hops, and requires the
// result to stay within base.
func resolveSymlinks(candidate, base string, hops *int) (string, error) {
	path := candidate
	for {
		info, err := os.Lstat(path)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}

		*hops++
		if *hops > maxSymlinkHops {
			return "", &PathError{Kind: PathSymlinkLoop, Op: "resolve"}
		}

		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			path = target
		} else {
			path = filepath.Join(filepath.Dir(path), target)
		}
		if !withinBase(path, base) {
			return "", &PathError{Kind: PathOutsideChroot, Op: "resolve"}
		}
	}
}

func withinBase(path, base string) bool {
	base = filepath.Clean(base)
	path = filepath.Clean(path)
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

// VirtualPath strips base from real, returning the client-visible,
// "/"-rooted path. real must lie within base.
func VirtualPath(base, real string) (string, error) {
	base = filepath.Clean(base)
	real = filepath.Clean(real)
	if real == base {
		return "/", nil
	}
	if !strings.HasPrefix(real, base+string(filepath.Separator)) {
		return "", errors.New("path outside base")
	}
	rel := strings.TrimPrefix(real, base)
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel, nil
}
