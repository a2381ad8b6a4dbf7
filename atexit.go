// Package autopkg holds small process-wide primitives shared by every
// other package in the module: cooperative shutdown, signal handling,
// and nothing else — the domain logic lives in internal/.
package autopkg

import (
	"sync"
	"sync/atomic"
)

var atExit struct {
	sync.Mutex
	fns    []func() error
	closed uint32
}

// RegisterAtExit queues fn to run once, in registration order, when
// RunAtExit is called. Used by scoped resources (chroots, workspaces,
// the run lock) that must still unwind on a clean top-level return.
func RegisterAtExit(fn func() error) {
	if atomic.LoadUint32(&atExit.closed) != 0 {
		panic("BUG: RegisterAtExit must not be called from an atExit func")
	}
	atExit.Lock()
	defer atExit.Unlock()
	atExit.fns = append(atExit.fns, fn)
}

// RunAtExit runs every function registered via RegisterAtExit, in order,
// stopping at (and returning) the first error.
func RunAtExit() error {
	atomic.StoreUint32(&atExit.closed, 1)
	for _, fn := range atExit.fns {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
