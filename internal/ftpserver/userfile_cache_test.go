package ftpserver

import (
	"path/filepath"
	"testing"
	"time"
)

func TestUserFileCacheMemoizes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cached.user")
	if err := WriteUserFile(path, &UserFile{Username: "cached", Password: "h"}); err != nil {
		t.Fatal(err)
	}

	cache := NewUserFileCache(time.Hour)
	first, err := cache.Get(path)
	if err != nil {
		t.Fatal(err)
	}

	// A disk-level change is invisible until invalidation.
	if err := AppendIPMasks(path, []string{"cached@10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	again, err := cache.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("fresh entry returned before invalidation")
	}
	if len(again.IPMasks) != 0 {
		t.Error("cached entry reflects on-disk change")
	}

	cache.Invalidate(path)
	reread, err := cache.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reread.IPMasks) != 1 {
		t.Errorf("after invalidation: expected the appended mask, got %v", reread.IPMasks)
	}
}

func TestUserFileCacheTTLExpiry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stale.user")
	if err := WriteUserFile(path, &UserFile{Username: "stale", Password: "h"}); err != nil {
		t.Fatal(err)
	}

	cache := NewUserFileCache(10 * time.Millisecond)
	if _, err := cache.Get(path); err != nil {
		t.Fatal(err)
	}

	if err := AppendIPMasks(path, []string{"stale@10.0.0.1"}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	reread, err := cache.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reread.IPMasks) != 1 {
		t.Errorf("after TTL expiry: expected a reread, got %v", reread.IPMasks)
	}
}

func TestUserFileCacheMissingFile(t *testing.T) {
	t.Parallel()
	cache := NewUserFileCache(time.Hour)
	if _, err := cache.Get(filepath.Join(t.TempDir(), "absent.user")); err == nil {
		t.Error("missing file returned no error")
	}
}
