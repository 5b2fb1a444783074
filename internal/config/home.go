package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

type homeKey struct{}

// WithHome stores the specq home path in the context.
func WithHome(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeKey{}, home)
}

// HomeFrom returns the specq home path from the context, if set.
func HomeFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(homeKey{})
	s, ok := v.(string)
	return s, ok
}

// MustHomeFrom returns the home path from the context, or panics if not set.
func MustHomeFrom(ctx context.Context) string {
	if h, ok := HomeFrom(ctx); ok && h != "" {
		return h
	}
	panic("specq home missing from context")
}

// ResolveHome returns the specq home directory (override, SPECQ_HOME, or default ~/.specq).
func ResolveHome(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	if env := os.Getenv("SPECQ_HOME"); env != "" {
		return filepath.Clean(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".specq"), nil
}

// QueuePath returns the path of the persisted queue document.
func QueuePath(home string) string { return filepath.Join(home, "queue.json") }

// ScanPath returns the path of the persisted scan results.
func ScanPath(home string) string { return filepath.Join(home, "scan.json") }

// DepsPath returns the path of the dependency graph report.
func DepsPath(home string) string { return filepath.Join(home, "deps.json") }

// LeasePath returns the path of the populate lease file.
func LeasePath(home string) string { return filepath.Join(home, "populate.lease") }

// LockPath returns the path of the orchestrator single-instance lock.
func LockPath(home string) string { return filepath.Join(home, "specq.lock") }

// HistoryDBPath returns the path of the attempt history database.
func HistoryDBPath(home string) string {
	return filepath.Join(home, "protected", "history.sqlite")
}
