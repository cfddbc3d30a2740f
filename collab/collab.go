// Package collab declares the helper capabilities the scripting runtime
// exposes to scripts. Implementations live in the subpackages; the runtime
// only sees these interfaces.
package collab

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by a Set member that was not configured.
var ErrUnavailable = errors.New("capability not available")

// Image is a decoded 8-bit pixel buffer with 3 (RGB) or 4 (RGBA) channels.
type Image interface {
	Width() int
	Height() int
	Channels() int
	// At returns the channels of pixel (x, y); alpha is 255 for RGB images.
	At(x, y int) (r, g, b, a uint8, err error)
	Set(x, y int, r, g, b, a uint8) error
	PNG() ([]byte, error)
}

// WatchEvent is one filesystem change.
type WatchEvent struct {
	Descriptor int
	Mask       uint32
	Name       string
}

// FileWatcher reports changes under watched paths. Receive never blocks.
type FileWatcher interface {
	Add(path string, mask uint32) (int, error)
	Remove(descriptor int) error
	Receive() (WatchEvent, bool, error)
	Close() error
}

// ChildProcess is a worker running in its own process. Receive never
// blocks.
type ChildProcess interface {
	Send(message string) error
	Receive() (string, bool, error)
	Running() bool
	Terminate() error
}

// Worker is a script running on its own Lua state inside the server
// process. Receive never blocks.
type Worker interface {
	Send(message string) error
	Receive() (string, bool, error)
	Stop() error
}

// HTTPResponse is a fully read response.
type HTTPResponse struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// HTTPClient performs blocking requests.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*HTTPResponse, error)
	Post(ctx context.Context, url string, headers map[string]string, body []byte, contentType string) (*HTTPResponse, error)
}

// Set bundles the capabilities handed to the runtime. Nil members make the
// matching script API fail with ErrUnavailable.
type Set struct {
	LoadImage   func(path string) (Image, error)
	BlankImage  func(width, height, channels int) (Image, error)
	Watch       func() (FileWatcher, error)
	Spawn       func(script string, args ...string) (ChildProcess, error)
	StartWorker func(script string) (Worker, error)
	HTTP        HTTPClient
}
