package session

import (
	"os"
	"path/filepath"
)

// DefaultCandidates returns the directories searched for the state file when
// no directory is configured, in order: a mounted volume, the application
// directory, the temp directory and the working directory.
func DefaultCandidates() []string {
	candidates := []string{"/data", "/app", os.TempDir()}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, wd)
	}
	return candidates
}

// Locate returns the path of fileName in the state directory. A configured
// stateDir is created when missing and wins when writable. Otherwise the
// first candidate that already exists and is writable is used; candidates
// are never created, so an unmounted volume path is passed over. When
// nothing qualifies fileName is returned unchanged, relative to the working
// directory.
func Locate(stateDir string, candidates []string, fileName string) string {
	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o755); err == nil && writable(stateDir) {
			return filepath.Join(stateDir, fileName)
		}
	}
	for _, dir := range candidates {
		if dir == "" || !isDir(dir) {
			continue
		}
		if writable(dir) {
			return filepath.Join(dir, fileName)
		}
	}
	return fileName
}

func isDir(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
