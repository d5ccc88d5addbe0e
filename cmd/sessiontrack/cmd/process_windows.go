//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a live process.
const stillActive = 259

// shutdownSignals are the signals that stop the daemon gracefully.
// SIGTERM does not exist on Windows; only Ctrl+C is delivered reliably.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive opens a query handle and checks the exit code.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

// requestShutdown terminates the daemon. Windows has no SIGTERM, so the
// queue is not drained; pending sessions are repaired on the next start.
func requestShutdown(proc *os.Process) error {
	return proc.Kill()
}
