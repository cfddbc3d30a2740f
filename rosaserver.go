//go:build linux

// Package rosaserver attaches the scripting runtime to a running Sub Rosa
// server. The shared library in cmd/librosa drives it: Attach and
// InstallBootstrap from the library constructor, GetPaths from the
// bootstrap interceptor, and the Dispatcher from every other interceptor.
package rosaserver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/sliverarmory/rosaserver/collab"
	"github.com/sliverarmory/rosaserver/config"
	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/hook"
	"github.com/sliverarmory/rosaserver/intercept"
	"github.com/sliverarmory/rosaserver/layout"
	"github.com/sliverarmory/rosaserver/logging"
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

var (
	ErrServerClosed = errors.New("rosaserver: server is closed")
	ErrBootstrapped = errors.New("rosaserver: already bootstrapped")
)

// BootstrapHook names the hook on the host's getPaths.
const BootstrapHook = "GetPaths"

// pathGlobals are the buffers getPaths fills with the working directory.
var pathGlobals = []string{"pathA", "pathB"}

// Options overrides the process-facing pieces of a Server. The zero value
// attaches to the current process.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Base is the host image base. Zero resolves it from /proc/self/maps.
	Base    uintptr
	Caller  memmod.Caller
	Patcher hook.Patcher
	// Pry opens pages for writing. Nil means memmod.Pry.
	Pry    func(addr uintptr, pages int) error
	Collab *collab.Set
	Exit   func(code int)
}

type Server struct {
	cfg   *config.Config
	log   *slog.Logger
	table *layout.Table
	hooks *hook.Manager
	reg   *entity.Registry
	rt    *luart.Runtime
	disp  *intercept.Dispatcher
	pry   func(addr uintptr, pages int) error
	exit  func(code int)

	mu           sync.Mutex
	signals      chan os.Signal
	bootstrapped bool
	closed       bool
}

// Attach resolves the host layout and builds the runtime and dispatcher.
// Nothing is hooked yet.
func Attach(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(cfg.LogLevel, os.Stderr)
	}

	base := opts.Base
	if base == 0 {
		var err error
		base, err = memmod.ResolveBase()
		if err != nil {
			return nil, fmt.Errorf("rosaserver: resolve base: %w", err)
		}
	}
	spec, err := layout.Open(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("rosaserver: open layout: %w", err)
	}

	caller := opts.Caller
	if caller == nil {
		caller = memmod.Native
	}
	patcher := opts.Patcher
	if patcher == nil {
		patcher = hook.NewInlinePatcher()
	}
	pry := opts.Pry
	if pry == nil {
		pry = func(addr uintptr, pages int) error {
			_, err := memmod.Pry(addr, pages)
			return err
		}
	}
	set := opts.Collab
	if set == nil {
		s := Collab(cfg, logger)
		set = &s
	}

	s := &Server{
		cfg:   cfg,
		log:   logging.Component(logger, "rosaserver"),
		table: spec.Resolve(base),
		pry:   pry,
		exit:  opts.Exit,
	}
	if s.exit == nil {
		s.exit = os.Exit
	}
	s.hooks = hook.NewManager(patcher)
	s.reg = entity.NewRegistry(s.table, caller)
	s.rt = luart.New(luart.Options{
		Registry:    s.reg,
		Hooks:       s.hooks,
		Logger:      logger,
		EntryFile:   cfg.EntryFile,
		Collab:      *set,
		ResetGame:   func(reason luart.Reason) { s.disp.ResetGameFor(reason) },
		HTTPTimeout: cfg.HTTPTimeout,
		Exit:        s.exit,
	})
	s.disp = intercept.New(s.rt, s.hooks, s.reg, logger)
	return s, nil
}

// InstallBootstrap hooks the host's getPaths, which runs early in main
// before any game state exists.
func (s *Server) InstallBootstrap(interceptor uintptr) error {
	fn, ok := s.table.Func("getPaths")
	if !ok {
		return fmt.Errorf("rosaserver: layout %s has no getPaths", s.table.Build())
	}
	if _, err := s.hooks.Install(BootstrapHook, fn, interceptor); err != nil {
		return fmt.Errorf("rosaserver: install bootstrap hook: %w", err)
	}
	return nil
}

// GetPaths replaces the host's getPaths and finishes attaching: it fills
// the path buffers with the working directory, locates memory, hooks every
// intercept.Target and stops LD_PRELOAD from reaching child processes.
func (s *Server) GetPaths(interceptors map[string]uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.bootstrapped {
		return ErrBootstrapped
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("rosaserver: getwd: %w", err)
	}
	for _, name := range pathGlobals {
		if v, ok := s.table.Global(name); ok {
			memmod.WriteCString(v.Addr, v.Size, cwd)
		}
	}

	s.log.Info("assuming build", "build", s.table.Build())
	s.log.Info("locating memory", "base", fmt.Sprintf("%#x", s.table.Base()))
	if err := s.table.Locate(s.pry); err != nil {
		return fmt.Errorf("rosaserver: locate memory: %w", err)
	}
	s.log.Info("installing hooks")
	if err := s.disp.Install(interceptors); err != nil {
		return fmt.Errorf("rosaserver: install hooks: %w", err)
	}
	s.log.Info("waiting for engine init")

	if err := os.Unsetenv("LD_PRELOAD"); err != nil {
		s.log.Warn("could not unset LD_PRELOAD", "err", err)
	}
	s.handleInterrupt()
	s.bootstrapped = true
	return nil
}

// handleInterrupt restores the host and exits on SIGINT.
func (s *Server) handleInterrupt() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	s.signals = ch
	go func() {
		if _, ok := <-ch; !ok {
			return
		}
		s.log.Info("interrupt received, shutting down")
		if err := s.Close(); err != nil {
			s.log.Error("shutdown failed", "err", err)
		}
		s.exit(0)
	}()
}

func (s *Server) Config() *config.Config { return s.cfg }

func (s *Server) Table() *layout.Table { return s.table }

func (s *Server) Hooks() *hook.Manager { return s.hooks }

func (s *Server) Registry() *entity.Registry { return s.reg }

func (s *Server) Runtime() *luart.Runtime { return s.rt }

func (s *Server) Dispatcher() *intercept.Dispatcher { return s.disp }

// Close removes every hook and drops the runtime. It is safe to call more
// than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.signals != nil {
		signal.Stop(s.signals)
		close(s.signals)
	}
	return errors.Join(s.hooks.Close(), s.rt.Close())
}
