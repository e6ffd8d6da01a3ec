package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Info describes a backup file on disk.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Sessions  int       `json:"sessions"`
	Trials    int       `json:"trials"`
}

// List returns the backups in dir, newest first. Files whose header cannot
// be read fall back to their modification time.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.CreatedAt = h.CreatedAt
			info.Sessions = h.SessionCount
			info.Trials = h.TrialCount
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RetentionPolicy picks which backups to delete. backups are newest first.
type RetentionPolicy interface {
	Expired(backups []Info, now time.Time) []Info
}

// CountPolicy keeps the newest N backups.
type CountPolicy struct {
	Keep int
}

func (p CountPolicy) Expired(backups []Info, _ time.Time) []Info {
	if p.Keep <= 0 || len(backups) <= p.Keep {
		return nil
	}
	return backups[p.Keep:]
}

// AgePolicy deletes backups older than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
}

func (p AgePolicy) Expired(backups []Info, now time.Time) []Info {
	if p.MaxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-p.MaxAge)
	var out []Info
	for _, b := range backups {
		if b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

// SizePolicy keeps the newest backups whose total size fits in MaxBytes.
// The newest backup is always kept.
type SizePolicy struct {
	MaxBytes int64
}

func (p SizePolicy) Expired(backups []Info, _ time.Time) []Info {
	if p.MaxBytes <= 0 {
		return nil
	}
	var total int64
	for i, b := range backups {
		total += b.Size
		if total > p.MaxBytes && i > 0 {
			return backups[i:]
		}
	}
	return nil
}

// CompositePolicy expires a backup when any of its policies does.
type CompositePolicy []RetentionPolicy

func (c CompositePolicy) Expired(backups []Info, now time.Time) []Info {
	seen := make(map[string]bool)
	var out []Info
	for _, p := range c {
		for _, b := range p.Expired(backups, now) {
			if !seen[b.Path] {
				seen[b.Path] = true
				out = append(out, b)
			}
		}
	}
	return out
}

// Prune deletes the backups in dir that policy expires and returns them.
func Prune(dir string, policy RetentionPolicy, now time.Time) ([]Info, error) {
	backups, err := List(dir)
	if err != nil {
		return nil, err
	}
	expired := policy.Expired(backups, now)
	for _, b := range expired {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
		}
	}
	return expired, nil
}

// ParseDuration parses durations with a day unit ("30d") as well as
// anything time.ParseDuration accepts.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// ParseSize parses sizes such as "500MB" or "2GB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid size %q", s)
			}
			return n * u.mult, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n, nil
}
