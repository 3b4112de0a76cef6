//go:build linux

package core

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// cpuSetSize is CPU_SETSIZE.
const cpuSetSize = 1024

// threadID returns the id of the calling OS thread.
func threadID() int {
	return unix.Gettid()
}

// pinThread restricts the calling OS thread to cpu modulo the number of CPUs
// the process may run on.
func pinThread(cpu int) (int, error) {
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		return -1, fmt.Errorf("sched_getaffinity: %w", err)
	}
	n := allowed.Count()
	if n == 0 {
		return -1, fmt.Errorf("sched_getaffinity: empty cpu set")
	}

	// Map cpu onto the n-th allowed CPU.
	want := cpu % n
	target := -1
	for i, seen := 0, 0; i < cpuSetSize; i++ {
		if allowed.IsSet(i) {
			if seen == want {
				target = i
				break
			}
			seen++
		}
	}
	if target < 0 {
		return -1, fmt.Errorf("sched_setaffinity: no cpu for slot %d", cpu)
	}

	var set unix.CPUSet
	set.Set(target)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return -1, fmt.Errorf("sched_setaffinity: %w", err)
	}
	return target, nil
}
