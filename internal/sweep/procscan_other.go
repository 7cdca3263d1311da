//go:build unix && !linux

package sweep

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// listProcesses enumerates the process table through ps on unixes without a
// /proc filesystem (macOS, the BSDs).
func listProcesses() ([]ProcessRecord, error) {
	out, err := exec.Command("ps", "-axo", "pid=,rss=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("ps failed: %w", err)
	}

	var records []ProcessRecord
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		rss, _ := strconv.ParseInt(fields[1], 10, 64)
		records = append(records, ProcessRecord{
			PID:     pid,
			Cmdline: strings.Join(fields[2:], " "),
			RSSKB:   rss,
		})
	}
	return records, nil
}

// parentOf returns the parent PID via ps, or 0 when it cannot be determined.
func parentOf(pid int) int {
	out, err := exec.Command("ps", "-o", "ppid=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return 0
	}
	ppid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0
	}
	return ppid
}
