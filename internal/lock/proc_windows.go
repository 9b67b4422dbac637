//go:build windows

package lock

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// processCwd reports the working directory of pid and whether it is running.
// Windows exposes no reliable cwd for another process, so the recycled-PID
// part of the staleness heuristic degrades to liveness only.
func processCwd(pid int) (string, bool, error) {
	if !pidAlive(pid) {
		return "", false, nil
	}
	return "", true, nil
}
