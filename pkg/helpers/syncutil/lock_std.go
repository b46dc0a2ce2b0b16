//go:build !deadlock

package syncutil

import "sync"

// Detecting reports whether the locks check for deadlocks.
const Detecting = false

type (
	Mutex   = sync.Mutex
	RWMutex = sync.RWMutex
)
