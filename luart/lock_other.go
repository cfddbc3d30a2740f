//go:build !linux

package luart

import "sync/atomic"

// Host code never re-enters on these platforms, so every caller gets a
// distinct id and the lock is never taken twice.
var nextThreadID atomic.Int64

func threadID() int {
	return int(nextThreadID.Add(1))
}
