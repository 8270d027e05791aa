// slot.go - per-thread-slot state

package kernel

// EntryFunc is a thread's entry point. Per the kernel's contract it must
// never return: a thread that wants to stop running calls DisableSelf or
// ReplaceSelf instead. A func that does return is a contract violation
// (spec: "undefined behavior"); this simulator resolves that by disabling
// the offending slot and reporting it through the assert callback rather
// than leaving the goroutine's fate ambiguous.
type EntryFunc func(k *Kernel, id uint8, arg any)

// reenterSentinel is panicked by the no-save scheduler entry (self-target
// of Create/Disable/ReplaceSelf) to unwind the calling goroutine's stack
// back to slotMain's recovery point without returning control to any
// caller in between — the host-simulator realization of "the caller's
// stack is already overwritten; jump straight into the scheduler."
type reenterSentinel struct{}

// slot is the per-thread state: the saved "stack pointer" is simulated by
// parking the slot's goroutine on turn until granted the CPU again; the
// simulated stack region backs the canary byte and exists so tests (and
// cmd/cokernelmon) can manufacture an overflow without real stack growth.
type slot struct {
	turn    chan struct{} // buffered(1): scheduler sends here to grant the CPU
	entry   EntryFunc
	arg     any
	stack   []byte // stack[0] is the canary byte, the lowest simulated address
	delay   uint16
	started bool // goroutine for this physical slot index has been launched
}

func newSlot(size uint16) *slot {
	return &slot{
		turn:  make(chan struct{}, 1),
		stack: make([]byte, size),
	}
}
