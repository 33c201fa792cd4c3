package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard rejects a call into an engine while another call into the
// same engine is still on the stack.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter marks the engine busy. Callers must invoke the returned release
// function once the call completes.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		return func() {}, ErrReentrantCall
	}
	return func() { g.entered.Store(false) }, nil
}

// PausedModules is a static PauseView backed by a set of module names.
type PausedModules map[string]bool

// IsPaused implements PauseView.
func (p PausedModules) IsPaused(module string) bool { return p[module] }
