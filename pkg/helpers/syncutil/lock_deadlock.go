//go:build deadlock

package syncutil

import (
	"os"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Detecting reports whether the locks check for deadlocks.
const Detecting = true

// WaitLimit is how long a Lock may wait before it is reported. Blocking
// reads never hold a lock, so anything this long is a bug.
const WaitLimit = 10 * time.Second

type (
	Mutex   = deadlock.Mutex
	RWMutex = deadlock.RWMutex
)

func init() {
	deadlock.Opts.DeadlockTimeout = WaitLimit
	deadlock.Opts.LogBuf = os.Stderr
}
