package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is the metadata stored next to each cached result.
type Entry struct {
	Key     string    `json:"key"`
	URL     string    `json:"url"`
	SavedAt time.Time `json:"saved_at"`
}

// ResultCache stores extraction results on disk as <digest>.meta.json and
// <digest>.body where digest is sha256 of the canonical request key.
// Expiry is by age only.
type ResultCache struct {
	Dir string
	// StrictPerms, when true, uses 0700 directories and 0600 files.
	StrictPerms bool
}

func (c *ResultCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	return os.MkdirAll(c.Dir, perm)
}

func (c *ResultCache) filePerm() os.FileMode {
	if c.StrictPerms {
		return 0o600
	}
	return 0o644
}

// Digest hashes a canonical request key into a file name stem.
func Digest(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func (c *ResultCache) metaPath(d string) string { return filepath.Join(c.Dir, d+".meta.json") }
func (c *ResultCache) bodyPath(d string) string { return filepath.Join(c.Dir, d+".body") }

// Get returns the cached body for key when it is younger than maxAge. A
// non-positive maxAge accepts any age.
func (c *ResultCache) Get(_ context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	if err := c.ensureDir(); err != nil {
		return nil, false, err
	}
	d := Digest(key)
	b, err := os.ReadFile(c.metaPath(d))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, nil
	}
	if e.Key != key {
		return nil, false, nil
	}
	if maxAge > 0 && time.Since(e.SavedAt) > maxAge {
		return nil, false, nil
	}
	body, err := os.ReadFile(c.bodyPath(d))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return body, true, nil
}

// Save writes the body first and then renames the metadata into place, so a
// reader never sees metadata without its body.
func (c *ResultCache) Save(_ context.Context, key, url string, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	d := Digest(key)
	if err := os.WriteFile(c.bodyPath(d), body, c.filePerm()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta, err := json.Marshal(Entry{Key: key, URL: url, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(d) + ".tmp"
	if err := os.WriteFile(tmp, meta, c.filePerm()); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(d))
}
