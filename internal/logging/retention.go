package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory and a glob of run logs to prune.
// Files listed in Keep are never removed (the active run log, for example).
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// CleanupOldLogs removes files matching target that were last modified more
// than retentionDays ago and returns how many were removed. A retentionDays
// value of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, target RetentionTarget) int {
	dir := strings.TrimSpace(target.Dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	return pruneBefore(logger, time.Now().AddDate(0, 0, -retentionDays), dir, target)
}

func pruneBefore(logger *slog.Logger, cutoff time.Time, dir string, target RetentionTarget) int {
	keep := make(map[string]struct{}, len(target.Keep))
	for _, path := range target.Keep {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			keep[abs] = struct{}{}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	pattern := strings.TrimSpace(target.Pattern)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if pattern != "" {
			if matched, err := filepath.Match(pattern, name); err != nil || !matched {
				continue
			}
		}
		fullPath := filepath.Join(dir, name)
		if abs, err := filepath.Abs(fullPath); err == nil {
			fullPath = abs
		}
		if _, skip := keep[fullPath]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned",
				String("path", fullPath),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}
