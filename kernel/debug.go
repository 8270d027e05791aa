// debug.go - KERNEL_USE_ASSERT contract

package kernel

import "runtime"

// Assert reproduces the original kernel's KERNEL_USE_ASSERT contract
// (see SPEC_FULL.md, original_source/kernel/kernel_debug.h): when
// cfg.UseAssert is set and cond is false, the user-supplied assert
// callback is invoked with the failing expression's source text and its
// call site; when UseAssert is clear, Assert is a no-op, matching the
// macro's compile-time-stripped behavior in the original.
//
// Unlike the original's macro, the call site is captured here via
// runtime.Caller rather than the preprocessor's __FILE__/__LINE__, the
// same technique the teacher's debug_backtrace.go already uses to walk
// call frames for its own diagnostics.
func (k *Kernel) Assert(cond bool, expr string) {
	if !k.cfg.UseAssert || cond {
		return
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "unknown", 0
	}
	if k.onAssert != nil {
		k.onAssert(expr, file, line)
	}
}
