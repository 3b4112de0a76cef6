//go:build !linux

package core

import (
	"errors"
	"os"
)

func threadID() int {
	return os.Getpid()
}

func pinThread(cpu int) (int, error) {
	return -1, errors.New("worker pinning is only supported on linux")
}
