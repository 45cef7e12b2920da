// Package inbox owns the ingestion directory areas and watches the inbox for
// new files.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/recipe-ingest/internal/logger"
)

// Area is one of the directories a source file can live in.
type Area string

const (
	AreaInbox     Area = "inbox"
	AreaProcessed Area = "processed"
	AreaFailed    Area = "failed"
	AreaDLQ       Area = "dlq"
)

var allAreas = []Area{AreaInbox, AreaProcessed, AreaFailed, AreaDLQ}

// Manager moves files between the directory areas under a base directory.
type Manager struct {
	base      string
	supported func(path string) bool
}

// NewManager creates a Manager rooted at base. supported filters ListInbox;
// nil accepts every regular file.
func NewManager(base string, supported func(path string) bool) *Manager {
	if supported == nil {
		supported = func(string) bool { return true }
	}
	return &Manager{base: base, supported: supported}
}

// Dir returns the directory for an area.
func (m *Manager) Dir(area Area) string {
	return filepath.Join(m.base, string(area))
}

// Dirs returns every area directory keyed by area name.
func (m *Manager) Dirs() map[string]string {
	out := make(map[string]string, len(allAreas))
	for _, a := range allAreas {
		out[string(a)] = m.Dir(a)
	}
	return out
}

// Setup creates all area directories.
func (m *Manager) Setup() error {
	for _, a := range allAreas {
		if err := os.MkdirAll(m.Dir(a), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", a, err)
		}
	}
	return nil
}

// Move renames src into the given area and returns the new path. When the
// name is taken a numeric suffix is added: recipe.pdf, recipe_1.pdf, ...
func (m *Manager) Move(ctx context.Context, src string, to Area) (string, error) {
	dest := UniquePath(m.Dir(to), filepath.Base(src))
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", src, to, err)
	}
	logger.CtxInfo(ctx, "Moved file from %s to %s", src, dest)
	return dest, nil
}

// UniquePath returns a path in dir for name that does not exist yet.
func UniquePath(dir, name string) string {
	dest := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest
		}
		dest = filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
	}
}

// AreaOf reports which area path lives in, or "" if none.
func (m *Manager) AreaOf(path string) Area {
	dir := filepath.Clean(filepath.Dir(path))
	for _, a := range allAreas {
		if dir == filepath.Clean(m.Dir(a)) {
			return a
		}
	}
	return ""
}

// ListInbox returns the supported files currently in the inbox, oldest first.
func (m *Manager) ListInbox() ([]string, error) {
	entries, err := os.ReadDir(m.Dir(AreaInbox))
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(m.Dir(AreaInbox), e.Name())
		if !m.supported(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: path, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// CleanupOld removes files older than days from the processed and failed
// areas and returns how many were removed. Individual failures are logged.
func (m *Manager) CleanupOld(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("days must be positive, got %d", days)
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, a := range []Area{AreaProcessed, AreaFailed} {
		entries, err := os.ReadDir(m.Dir(a))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("read %s: %w", a, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(m.Dir(a), e.Name())
			if err := os.Remove(path); err != nil {
				logger.FromContext(ctx).WithError(err).Errorf("Failed to remove old file %s", path)
				continue
			}
			removed++
		}
	}
	logger.With(logger.Fields{logger.FieldCount: removed}).Info(ctx, "Cleaned up files older than %d days", days)
	return removed, nil
}
