//go:build fibers_release

package core

// strictMisuse routes synchronization misuse to the misuse handler.
const strictMisuse = false
