package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	// ErrReentrantCall reports that an entry point was invoked again while a
	// previous invocation was still executing, typically from a custody or
	// marketplace callback.
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

// ReentrancyGuard tracks which entry points are currently executing. It is not
// a mutex: entering a section that is already held fails immediately with
// ErrReentrantCall instead of blocking, so callback-driven reentrancy surfaces
// as a distinct error rather than a deadlock.
type ReentrancyGuard struct {
	held map[string]bool
}

// NewReentrancyGuard returns an empty guard.
func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{held: make(map[string]bool)}
}

// Enter acquires the named section and returns a release function. The release
// function must be called exactly once when the section completes.
func (g *ReentrancyGuard) Enter(section string) (func(), error) {
	if g == nil || section == "" {
		return func() {}, nil
	}
	if g.held == nil {
		g.held = make(map[string]bool)
	}
	if g.held[section] {
		return nil, ErrReentrantCall
	}
	g.held[section] = true
	return func() { delete(g.held, section) }, nil
}
