//go:build linux

package sweep

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// listProcesses enumerates the process table from /proc: numeric directories
// with a non-empty cmdline. Kernel threads have empty cmdlines and are
// skipped; processes vanishing mid-scan are skipped silently.
func listProcesses() ([]ProcessRecord, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var records []ProcessRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		// cmdline arguments are NUL-separated.
		cmdline := strings.ReplaceAll(strings.TrimRight(string(raw), "\x00"), "\x00", " ")

		records = append(records, ProcessRecord{
			PID:     pid,
			Cmdline: cmdline,
			RSSKB:   readRSSKB(entry.Name()),
		})
	}
	return records, nil
}

// readRSSKB pulls VmRSS from /proc/<pid>/status. Zero means unknown.
func readRSSKB(pid string) int64 {
	data, err := os.ReadFile(filepath.Join("/proc", pid, "status"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				return kb
			}
		}
	}
	return 0
}

// parentOf returns the parent PID, or 0 when it cannot be determined.
func parentOf(pid int) int {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "PPid:") {
			continue
		}
		if ppid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PPid:"))); err == nil {
			return ppid
		}
	}
	return 0
}
