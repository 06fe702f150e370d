// Package chunk runs a sequence of steps one item at a time, handing control
// back to the scheduler between items so long scans stay responsive.
package chunk

import "runtime"

// StepFunc processes item i. Returning false stops the sequence early.
type StepFunc func(i int) bool

// DoneFunc is called exactly once when the sequence ends. interrupted is true
// when a step returned false.
type DoneFunc func(interrupted bool)

// Runner drives steps sequentially in increasing index order.
// The zero value is ready to use.
type Runner struct {
	// Yield is called between consecutive steps. Defaults to runtime.Gosched.
	Yield func()
}

// Run calls step for every index in [0, count) and then done.
// A count of zero calls done(false) without calling step.
func (r Runner) Run(count int, step StepFunc, done DoneFunc) {
	yield := r.Yield
	if yield == nil {
		yield = runtime.Gosched
	}

	for i := range count {
		if i > 0 {
			yield()
		}

		if !step(i) {
			done(true)

			return
		}
	}

	done(false)
}

// RunAll is Run for callers that prefer a return value to a continuation.
func (r Runner) RunAll(count int, step StepFunc) (interrupted bool) {
	r.Run(count, step, func(stopped bool) {
		interrupted = stopped
	})

	return interrupted
}
