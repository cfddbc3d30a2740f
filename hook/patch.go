package hook

// Patcher rewrites a function entry so calls land somewhere else.
type Patcher interface {
	// Patch redirects target to replacement and returns a trampoline that
	// runs the original function.
	Patch(target, replacement uintptr) (*Patch, error)
	// Restore puts the saved bytes back. The trampoline stays mapped since a
	// host thread may still be running through it.
	Restore(p *Patch) error
}

// Patch is the state needed to undo one redirection.
type Patch struct {
	Target      uintptr
	Replacement uintptr
	Trampoline  uintptr
	Saved       []byte
}
