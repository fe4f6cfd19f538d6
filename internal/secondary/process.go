package secondary

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
)

// processRunning snapshots all process names and matches the given
// image name case-insensitively. Enumeration errors degrade to "not
// running": the check only gates a log warning.
func processRunning(name string) bool {
	procs, err := process.Processes()
	if err != nil {
		log.Debug("process snapshot failed", logging.KeyError, err)
		return false
	}

	want := strings.ToLower(name)
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil || pname == "" {
			continue
		}
		if strings.ToLower(pname) == want {
			return true
		}
	}
	return false
}
