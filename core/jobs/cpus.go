package jobs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// OnlineCPUsPath lists the host's online CPUs, for example "0-3,6".
const OnlineCPUsPath = "/sys/devices/system/cpu/online"

// OnlineCPUs returns one more than the highest online CPU number of the host,
// so every online core c satisfies c < n. Unlike runtime.NumCPU it ignores
// the affinity mask of the calling process.
func OnlineCPUs(fsys afero.Fs) (int, error) {
	contents, err := afero.ReadFile(fsys, OnlineCPUsPath)
	if err != nil {
		return 0, err
	}
	return parseCPUList(strings.TrimSpace(string(contents)))
}

// parseCPUList parses the kernel's cpulist format.
func parseCPUList(list string) (int, error) {
	highest := -1
	for _, part := range strings.Split(list, ",") {
		last := part
		if idx := strings.IndexByte(part, '-'); idx >= 0 {
			if _, err := strconv.Atoi(part[:idx]); err != nil {
				return 0, fmt.Errorf("invalid cpu list %q", list)
			}
			last = part[idx+1:]
		}
		n, err := strconv.Atoi(last)
		if err != nil {
			return 0, fmt.Errorf("invalid cpu list %q", list)
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
