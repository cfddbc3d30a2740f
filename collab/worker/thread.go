package worker

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sliverarmory/rosaserver/logging"
)

// Thread is a worker running in its own Lua state inside this process. It
// speaks the same frames as a Process over in-memory pipes.
type Thread struct {
	toWorker *io.PipeWriter
	fromPipe *io.PipeReader
	in       *inbox
	log      *slog.Logger

	exited   chan struct{}
	err      error
	stopping atomic.Bool
	stopOnce sync.Once
}

// Start runs script on a new goroutine.
func Start(script string, logger *slog.Logger, args ...string) *Thread {
	workerIn, toWorker := io.Pipe()
	fromPipe, workerOut := io.Pipe()
	t := &Thread{
		toWorker: toWorker,
		fromPipe: fromPipe,
		in:       newInbox(fromPipe),
		log:      logging.Component(logger, "worker").With("script", script),
		exited:   make(chan struct{}),
	}
	go func() {
		defer close(t.exited)
		t.err = Serve(script, args, workerIn, workerOut, logger)
		if t.err != nil && !t.stopping.Load() {
			t.log.Warn("worker failed", "err", t.err)
		}
		_ = workerOut.Close()
		_ = workerIn.Close()
	}()
	t.log.Debug("worker started")
	return t
}

// Send queues message for the worker's receiveMessage.
func (t *Thread) Send(message string) error {
	select {
	case <-t.exited:
		return ErrTerminated
	default:
	}
	return WriteFrame(t.toWorker, Frame{Body: message})
}

// Receive returns a message the worker sent, if one is queued.
func (t *Thread) Receive() (string, bool, error) {
	f, ok := t.in.poll()
	if !ok {
		return "", false, nil
	}
	return f.Body, true, nil
}

// Stop tells the worker its parent is gone and waits for the script to
// return. Calling it again is a no-op.
func (t *Thread) Stop() error {
	t.stopOnce.Do(func() {
		t.stopping.Store(true)
		_ = t.toWorker.Close()
		_ = t.fromPipe.CloseWithError(ErrTerminated)
		<-t.exited
		t.log.Debug("worker stopped")
	})
	return nil
}

// Err is the script's error, once it has returned.
func (t *Thread) Err() error {
	select {
	case <-t.exited:
		return t.err
	default:
		return nil
	}
}
