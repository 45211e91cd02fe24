// Package reaper removes per-session browser profile directories. A browser
// that is still exiting keeps files locked for a while, so removal is retried
// in the background until the directory is gone.
package reaper

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between removal attempts.
const DefaultInterval = time.Second

// Reaper schedules detached directory removal.
type Reaper struct {
	Interval time.Duration
	// Remove and Stat default to os.RemoveAll and os.Stat.
	Remove func(path string) error
	Stat   func(path string) (os.FileInfo, error)
}

// New returns a Reaper using DefaultInterval.
func New() *Reaper {
	return &Reaper{Interval: DefaultInterval}
}

// Schedule starts a goroutine that retries removing dir until it no longer
// exists. Errors are swallowed. The returned channel is closed once the
// directory is gone; callers are free to ignore it.
func (r *Reaper) Schedule(dir string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(dir)
	}()
	return done
}

func (r *Reaper) run(dir string) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	attempts := 0
	for r.exists(dir) {
		time.Sleep(interval)
		attempts++
		if err := r.remove(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Int("attempt", attempts).Msg("profile dir removal failed; retrying")
		}
	}
	log.Debug().Str("dir", dir).Int("attempts", attempts).Msg("profile dir removed")
}

func (r *Reaper) exists(dir string) bool {
	stat := r.Stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(dir)
	return !errors.Is(err, fs.ErrNotExist)
}

func (r *Reaper) remove(dir string) error {
	if r.Remove != nil {
		return r.Remove(dir)
	}
	return os.RemoveAll(dir)
}

// SweepOrphans removes directories directly under root whose name starts with
// prefix and whose modification time is older than olderThan. These are left
// behind when the process dies before its reapers finish.
func SweepOrphans(root, prefix string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // skip entries that vanished
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			log.Debug().Err(err).Str("dir", e.Name()).Msg("orphan sweep skipped dir")
			continue
		}
		removed++
	}
	return removed, nil
}
