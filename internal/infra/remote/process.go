package remote

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// ProcessWatch checks whether the remote player process is running by scanning
// process command lines for the player's executable name.
type ProcessWatch struct {
	exe      string
	procRoot string
}

// NewProcessWatch creates a watch for the executable named by playerLocation,
// which may be a Windows path.
func NewProcessWatch(playerLocation string) *ProcessWatch {
	return &ProcessWatch{
		exe:      ExecutableName(playerLocation),
		procRoot: procfs.DefaultMountPoint,
	}
}

// WithProcRoot returns a copy of the watch reading another proc tree.
func (p *ProcessWatch) WithProcRoot(root string) *ProcessWatch {
	cp := *p
	cp.procRoot = root
	return &cp
}

// ExecutableName returns the lower-cased base name of a Windows or POSIX path.
func ExecutableName(location string) string {
	location = strings.ReplaceAll(location, `\`, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		location = location[i+1:]
	}
	return strings.ToLower(location)
}

// Alive reports whether any process has the executable in its command line.
// Wine starts the player as an argument of its loader, so every argument is
// checked, not only the first.
func (p *ProcessWatch) Alive() (bool, error) {
	if p.exe == "" {
		return false, nil
	}

	fs, err := procfs.NewFS(p.procRoot)
	if err != nil {
		return false, fmt.Errorf("open proc: %w", err)
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	for _, proc := range procs {
		// Processes may exit while we scan
		args, err := proc.CmdLine()
		if err != nil {
			continue
		}
		for _, arg := range args {
			if ExecutableName(arg) == p.exe {
				return true, nil
			}
		}
	}
	return false, nil
}
