//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that stop the daemon gracefully.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processIsAlive probes the process with signal 0.
func processIsAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// requestShutdown asks the daemon to drain its queue and exit.
func requestShutdown(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
