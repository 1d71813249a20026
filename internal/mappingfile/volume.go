package mappingfile

import (
	"fmt"
	"os"
	"strings"
)

// volumeRoots are the container paths conventionally bind-mounted from
// the host.
var volumeRoots = []string{"/data", "/output", "/mnt"}

// inContainer is replaced in tests.
var inContainer = runningInContainer

// VolumeWarning returns a warning when path is written from inside a
// container to a location that is probably not mounted from the host.
// It returns "" otherwise.
func VolumeWarning(path string) string {
	if !inContainer() {
		return ""
	}
	for _, root := range volumeRoots {
		if strings.HasPrefix(path, root) {
			return ""
		}
	}
	return fmt.Sprintf("output file %q is not under %s; it may not be accessible from the host unless a volume is mapped to this location",
		path, strings.Join(volumeRoots, ", "))
}

func runningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "kubepods")
}
