// Package backup takes consistent point-in-time copies of the sqlite
// knowledge store and prunes them with a tiered retention policy.
package backup

import "time"

// FilePrefix starts the name of every backup file.
const FilePrefix = "mlkg-backup-"

// RetentionPolicy defines how many backups to keep at each tier.
// Backups are categorized by age:
// - Hourly: backups less than 24 hours old
// - Daily: backups between 1-7 days old
// - Weekly: backups between 7-30 days old
// - Monthly: backups between 30-365 days old
// Backups older than a year are always removed.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultRetention keeps a day of hourly backups, a week of dailies, a month
// of weeklies and a year of monthlies.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Info describes a backup file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a backup just taken.
type Result struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration_ns"`
	Size     int64         `json:"size"`
	Verified bool          `json:"verified"`
	Pruned   int           `json:"pruned"`
}
