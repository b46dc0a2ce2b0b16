// Package syncutil holds the locks shared by the logger, scanner, manager
// and player. Building with -tags deadlock backs them with go-deadlock,
// which reports lock order inversions and locks waited on too long.
package syncutil

import "sync"

var (
	_ sync.Locker = (*Mutex)(nil)
	_ sync.Locker = (*RWMutex)(nil)
)
