// Package worker runs script workers in child processes. Parent and child
// exchange length-prefixed CBOR frames over the child's stdin and stdout.
package worker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrame bounds a single encoded frame.
const MaxFrame = 16 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// Frame is one message between parent and worker.
type Frame struct {
	Body string `cbor:"1,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("worker: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// WriteFrame writes f as a big-endian uint32 length followed by its CBOR
// encoding.
func WriteFrame(w io.Writer, f Frame) error {
	data, err := encMode.Marshal(f)
	if err != nil {
		return fmt.Errorf("worker: marshal frame: %w", err)
	}
	if len(data) > MaxFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame. A clean end of stream between frames is io.EOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return Frame{}, fmt.Errorf("worker: short frame: %w", err)
	}
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("worker: unmarshal frame: %w", err)
	}
	return f, nil
}

// inbox collects frames read by a background goroutine so the owner can
// poll without blocking.
type inbox struct {
	frames chan Frame
	done   chan struct{}
	err    error
}

func newInbox(r io.Reader) *inbox {
	in := &inbox{frames: make(chan Frame, 256), done: make(chan struct{})}
	go func() {
		defer close(in.done)
		for {
			f, err := ReadFrame(r)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, ErrTerminated) {
					in.err = err
				}
				close(in.frames)
				return
			}
			in.frames <- f
		}
	}()
	return in
}

// poll returns the next frame if one is queued.
func (in *inbox) poll() (Frame, bool) {
	select {
	case f, ok := <-in.frames:
		return f, ok
	default:
		return Frame{}, false
	}
}
