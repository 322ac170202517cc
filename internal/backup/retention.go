package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// List returns the backup files in dir, newest first. A missing directory
// yields no backups.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, FilePrefix) || filepath.Ext(name) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, name),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// ApplyRetention deletes backups that fall outside policy relative to now
// and returns how many were removed.
func ApplyRetention(dir string, policy RetentionPolicy, now time.Time) (int, error) {
	backups, err := List(dir)
	if err != nil {
		return 0, err
	}

	var hourly, daily, weekly, monthly int
	removed := 0
	for _, b := range backups {
		age := now.Sub(b.Timestamp)

		keep := false
		switch {
		case age < 24*time.Hour:
			hourly++
			keep = hourly <= policy.Hourly
		case age < 7*24*time.Hour:
			daily++
			keep = daily <= policy.Daily
		case age < 30*24*time.Hour:
			weekly++
			keep = weekly <= policy.Weekly
		case age < 365*24*time.Hour:
			monthly++
			keep = monthly <= policy.Monthly
		}
		if keep {
			continue
		}

		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("backup: failed to remove %s: %w", b.Path, err)
		}
		removed++
	}
	return removed, nil
}

// DiskUsage sums the size of every backup in dir.
func DiskUsage(dir string) (int64, error) {
	backups, err := List(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range backups {
		total += b.Size
	}
	return total, nil
}
