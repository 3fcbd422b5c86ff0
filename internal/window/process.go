package window

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultProcRoot is where process metadata is read from
const DefaultProcRoot = "/proc"

// processName resolves a PID to an executable name. The executable path gives
// the full name; the process name (truncated by Linux to 15 bytes) is used
// when the path is unreadable, as for other users' processes.
func processName(procRoot string, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	ctx := context.WithValue(context.Background(), common.EnvKey, common.EnvMap{
		common.HostProcEnvKey: procRoot,
	})

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("failed to resolve process %d: %w", pid, err)
	}

	if exe, err := p.ExeWithContext(ctx); err == nil {
		name := filepath.Base(strings.TrimSuffix(exe, " (deleted)"))
		if name != "" && name != "." && name != "/" {
			return name, nil
		}
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve process %d: %w", pid, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("process %d has no name", pid)
	}
	return name, nil
}

// parseWMClass returns the instance part of a WM_CLASS value
// ("instance\x00Class\x00"), falling back to the class part
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return ""
}
