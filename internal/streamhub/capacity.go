package streamhub

import (
	"os"
	"strconv"
	"strings"
)

// detectContainerMemoryLimit reads the container memory limit from the
// cgroup filesystem, trying cgroup v2 before falling back to v1. It
// returns 0 (no limit detected) on bare metal, VMs, or an unconstrained
// container.
func detectContainerMemoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			if v, err := strconv.ParseInt(limitStr, 10, 64); err == nil {
				return v
			}
		}
		return 0
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

// bytesPerSubscriber estimates one SSE subscriber's steady-state memory
// footprint: its bounded buffer (capacity items, ~500 bytes each) plus
// per-goroutine overhead for the handler and drain loop.
const bytesPerSubscriber = 64 * 1024

// runtimeOverheadBytes is reserved for the Go runtime, the franz-go
// client, and the two shared consumer group goroutines before any
// capacity is attributed to subscribers.
const runtimeOverheadBytes = 96 * 1024 * 1024

const (
	minSubscribers = 100
	maxSubscribers = 100000
	defaultSubscribers = 20000
)

// MaxSubscribers returns a safe upper bound on concurrent SSE subscribers
// for this process, derived from the container memory limit detected via
// cgroup (v2 then v1). With no limit detected it falls back to
// defaultSubscribers.
func MaxSubscribers() int {
	limit := detectContainerMemoryLimit()
	if limit == 0 {
		return defaultSubscribers
	}

	available := limit - runtimeOverheadBytes
	if available < 0 {
		available = limit / 2
	}

	n := int(available / bytesPerSubscriber)
	if n < minSubscribers {
		n = minSubscribers
	}
	if n > maxSubscribers {
		n = maxSubscribers
	}
	return n
}
