// Package watch reports filesystem changes through a non-blocking inotify
// descriptor, so scripts can poll it once per tick.
package watch

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/rosaserver/collab"
)

var ErrClosed = errors.New("watcher closed")

// Watcher wraps one inotify instance.
type Watcher struct {
	mu      sync.Mutex
	fd      int
	buf     [unix.SizeofInotifyEvent * 64 * 4]byte
	pending []collab.WatchEvent
}

func New() (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	return &Watcher{fd: fd}, nil
}

// Add watches path for the events in mask and returns the watch
// descriptor.
func (w *Watcher) Add(path string, mask uint32) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return 0, ErrClosed
	}
	wd, err := unix.InotifyAddWatch(w.fd, path, mask)
	if err != nil {
		return 0, fmt.Errorf("watch %s: %w", path, err)
	}
	return wd, nil
}

func (w *Watcher) Remove(descriptor int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return ErrClosed
	}
	if _, err := unix.InotifyRmWatch(w.fd, uint32(descriptor)); err != nil {
		return fmt.Errorf("unwatch %d: %w", descriptor, err)
	}
	return nil
}

// Receive returns the next queued event, reading more from the kernel when
// the queue is empty. It reports false when nothing is pending.
func (w *Watcher) Receive() (collab.WatchEvent, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return collab.WatchEvent{}, false, ErrClosed
	}
	if len(w.pending) == 0 {
		n, err := unix.Read(w.fd, w.buf[:])
		if errors.Is(err, unix.EAGAIN) {
			return collab.WatchEvent{}, false, nil
		}
		if err != nil {
			return collab.WatchEvent{}, false, fmt.Errorf("read inotify: %w", err)
		}
		w.pending = parse(w.buf[:n])
	}
	if len(w.pending) == 0 {
		return collab.WatchEvent{}, false, nil
	}
	ev := w.pending[0]
	w.pending = w.pending[1:]
	return ev, true, nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	w.pending = nil
	return err
}

// parse splits a read buffer into events. Names are NUL padded.
func parse(b []byte) []collab.WatchEvent {
	var out []collab.WatchEvent
	for len(b) >= unix.SizeofInotifyEvent {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&b[0]))
		end := unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(b) {
			break
		}
		name := b[unix.SizeofInotifyEvent:end]
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		out = append(out, collab.WatchEvent{Descriptor: int(raw.Wd), Mask: raw.Mask, Name: string(name)})
		b = b[end:]
	}
	return out
}
