package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// pidFilePath returns the PID file location for the daemon.
func pidFilePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".sessiontrack", "sessiontrack.pid")
	}
	return filepath.Join(os.TempDir(), "sessiontrack.pid")
}

// writePIDFile writes the current PID, creating parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600)
}

// readPIDFile returns the PID stored at path, or 0 if it is missing or invalid.
func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
