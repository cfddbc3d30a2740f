package worker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/sliverarmory/rosaserver/logging"
)

var ErrTerminated = errors.New("worker terminated")

// Process is a running worker.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	in    *inbox
	log   *slog.Logger

	mu       sync.Mutex
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Spawn starts binary as `binary worker -- script args...`. The child
// inherits stderr so its logs reach the server console.
func Spawn(binary, script string, logger *slog.Logger, args ...string) (*Process, error) {
	cmd := exec.Command(binary, append([]string{"worker", "--", script}, args...)...)
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", script, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		in:     newInbox(stdout),
		log:    logging.Component(logger, "worker").With("script", script, "pid", cmd.Process.Pid),
		exited: make(chan struct{}),
	}
	go func() {
		<-p.in.done
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	p.log.Debug("worker started")
	return p, nil
}

// Send queues message for the worker's receiveMessage.
func (p *Process) Send(message string) error {
	if !p.Running() {
		return ErrTerminated
	}
	return WriteFrame(p.stdin, Frame{Body: message})
}

// Receive returns a message the worker sent, if one is queued.
func (p *Process) Receive() (string, bool, error) {
	f, ok := p.in.poll()
	if !ok {
		return "", false, nil
	}
	return f.Body, true, nil
}

func (p *Process) Running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Terminate kills the worker and waits for it. Calling it again is a no-op.
func (p *Process) Terminate() error {
	p.stopOnce.Do(func() {
		_ = p.stdin.Close()
		if p.Running() {
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
		p.log.Debug("worker stopped")
	})
	return nil
}

// Err is the worker's exit error, once it has exited.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}
