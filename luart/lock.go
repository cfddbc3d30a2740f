package luart

import (
	"runtime"
	"sync"
)

// threadLock is a mutex that the owning OS thread may take again. Host
// code called from a script callback can re-enter an interceptor on the
// same thread, which must not deadlock on the lock its caller holds.
type threadLock struct {
	mu    sync.Mutex
	state sync.Mutex // guards owner and depth
	owner int
	depth int
}

func (l *threadLock) Lock() {
	runtime.LockOSThread()
	tid := threadID()

	l.state.Lock()
	if l.depth > 0 && l.owner == tid {
		l.depth++
		l.state.Unlock()
		return
	}
	l.state.Unlock()

	l.mu.Lock()
	l.state.Lock()
	l.owner = tid
	l.depth = 1
	l.state.Unlock()
}

func (l *threadLock) Unlock() {
	l.state.Lock()
	l.depth--
	release := l.depth == 0
	if release {
		l.owner = 0
	}
	l.state.Unlock()
	if release {
		l.mu.Unlock()
	}
	runtime.UnlockOSThread()
}
