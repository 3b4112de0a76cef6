//go:build !fibers_release

package core

// strictMisuse makes synchronization misuse panic.
const strictMisuse = true
