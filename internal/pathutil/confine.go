// Package pathutil keeps user-supplied paths inside the directories the
// tool is allowed to write to.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed is returned for a path outside every allowed directory.
var ErrOutsideAllowed = errors.New("path outside allowed directories")

// Confine returns the cleaned absolute form of path, or ErrOutsideAllowed
// if it does not resolve inside one of dirs. Symlinks in the longest
// existing prefix of path and of each dir are resolved first.
func Confine(path string, dirs ...string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", Redact(path), err)
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", err
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		resolvedDir, err := resolve(absDir)
		if err != nil {
			continue
		}
		if within(resolved, resolvedDir) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideAllowed, Redact(path))
}

// Redact replaces the home directory prefix with ~ for logs and errors.
func Redact(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return filepath.Join("~", rest)
	}
	return path
}

// resolve evaluates symlinks in the longest existing prefix of path and
// re-appends the part that does not exist yet.
func resolve(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolving %s: %w", Redact(cur), err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
