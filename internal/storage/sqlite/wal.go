package sqlite

import (
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// dbPathFromDSN extracts the file path of a DSN: a bare path or a file: URI.
// In-memory databases yield "".
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// isRecoverableWALError matches the open errors left by -shm/-wal files of a
// crashed process.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether WAL files exist for dbPath and no process holds
// them. Without lsof the answer is always false.
func isWALStale(dbPath string) bool {
	shm, wal := dbPath+"-shm", dbPath+"-wal"
	if !fileExists(shm) && !fileExists(wal) {
		return false
	}
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsof, "-t", dbPath, shm, wal).Output()
	if err != nil {
		// exit status 1: nothing holds the files
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s%s: %v", dbPath, suffix, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
