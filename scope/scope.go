// Package scope provides small guard values that pair the profiler's
// Begin/End calls, so nesting follows lexical structure:
//
//	s := scope.Start(p, enc, "shadow pass")
//	defer s.End()
//	blur := s.Child(enc, "blur")
//	// ...
//	blur.End()
package scope

import (
	profiler "github.com/gogpu/wgpu-profiler"
	"github.com/gogpu/wgpu-profiler/gpu"
)

// Scope is an open timer scope bound to the recorder it was opened on.
// The zero value is invalid; obtain scopes from Start, StartPass or Child.
type Scope struct {
	p     *profiler.Profiler
	rec   gpu.Recorder
	timer *profiler.TimerScope
	ended bool
}

// Start opens a root timer scope on rec.
func Start(p *profiler.Profiler, rec gpu.Recorder, label string) *Scope {
	return &Scope{p: p, rec: rec, timer: p.BeginScope(rec, label, nil)}
}

// StartPass opens a root pass scope on enc. Feed Timer().PassTimestampWrites
// into the pass descriptor; see [profiler.Profiler.BeginPassScope].
func StartPass(p *profiler.Profiler, enc gpu.Recorder, label string) *Scope {
	return &Scope{p: p, rec: enc, timer: p.BeginPassScope(enc, label, nil)}
}

// Child opens a nested scope under s, on the given recorder. The recorder
// may differ from the parent's; scope trees span recording contexts freely.
func (s *Scope) Child(rec gpu.Recorder, label string) *Scope {
	return &Scope{p: s.p, rec: rec, timer: s.p.BeginScope(rec, label, s.timer)}
}

// ChildPass opens a nested pass scope under s.
func (s *Scope) ChildPass(enc gpu.Recorder, label string) *Scope {
	return &Scope{p: s.p, rec: enc, timer: s.p.BeginPassScope(enc, label, s.timer)}
}

// Timer returns the underlying timer scope, for pass timestamp wiring or
// for passing as an explicit parent.
func (s *Scope) Timer() *profiler.TimerScope { return s.timer }

// End closes the scope. Safe to call more than once; only the first call
// reaches the profiler, so End composes with defer.
func (s *Scope) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	return s.p.EndScope(s.rec, s.timer)
}

// With runs fn inside a scope and closes it afterwards, even on panic.
func With(p *profiler.Profiler, rec gpu.Recorder, label string, fn func(*Scope)) error {
	s := Start(p, rec, label)
	defer s.End()
	fn(s)
	return s.End()
}
