// kernel.go - thread table, boot sequence, and the permanent per-slot
// goroutines that stand in for each thread's hardware context

package kernel

import (
	"fmt"
	"sync"
)

// OverflowFunc is invoked from scheduler context when a slot's stack
// canary no longer matches the configured sentinel. If it returns, the
// scheduler continues with the selection anyway, per spec.
type OverflowFunc func(id uint8)

// AssertFunc is invoked when a kernel assertion fails. It is expected not
// to return; if it does, the kernel proceeds (there is no in-band error
// path out of an assertion).
type AssertFunc func(expr, file string, line int)

// Kernel is a single instance of the cooperative thread kernel. Real
// firmware has exactly one, process-global; this host simulator makes it
// a value so tests can construct many independent kernels.
type Kernel struct {
	cfg Config
	sm  stackMap

	mu          sync.Mutex
	slots       [MaxSlots]*slot
	disabled    uint8
	suspended   uint8
	delayed     uint8
	current     uint8
	currentMask uint8
	uptime      uint32

	wake chan struct{} // non-blocking-send poke: something may be runnable now

	onOverflow OverflowFunc
	onAssert   AssertFunc

	tickStop chan struct{}
	tickDone chan struct{}
}

// New constructs a Kernel from cfg and the user-supplied fault callbacks.
// Per spec.md §6, overflow must be non-nil if cfg.UseCanary is set, and
// assert must be non-nil if cfg.UseAssert is set — both are contracts the
// kernel invokes under, not features it can run without once enabled.
func New(cfg Config, overflow OverflowFunc, assert AssertFunc) (*Kernel, error) {
	if cfg.UseCanary && overflow == nil {
		return nil, fmt.Errorf("kernel: UseCanary requires a non-nil overflow callback")
	}
	if cfg.UseAssert && assert == nil {
		return nil, fmt.Errorf("kernel: UseAssert requires a non-nil assert callback")
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 1_000_000
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := cfg.Threads
	fullMask := uint8((1 << n) - 1)

	k := &Kernel{
		cfg:        cfg,
		sm:         buildStackMap(cfg),
		disabled:   fullMask &^ 1, // only slot 0 is valid at init
		wake:       make(chan struct{}, 1),
		onOverflow: overflow,
		onAssert:   assert,
	}
	return k, nil
}

// Boot starts the kernel: slot 0 becomes the currently running thread,
// executing entry(k, 0, arg), exactly as if the user's program had
// already been running as thread 0 when the kernel took over. Boot
// returns once slot 0's goroutine has been granted the CPU; it does not
// wait for entry to return (it never should).
func (k *Kernel) Boot(entry EntryFunc, arg any) {
	if entry == nil {
		panic("kernel: Boot requires a non-nil entry")
	}
	k.mu.Lock()
	k.initSlotLocked(0, entry, arg, false)
	k.current = 0
	k.currentMask = 1
	k.mu.Unlock()

	k.ensureSlotGoroutine(0)
	k.slots[0].turn <- struct{}{}
}

// Shutdown stops the tick ISR goroutine if it was started via StartTicker.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	stop := k.tickStop
	k.tickStop = nil
	k.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-k.tickDone
}

// initSlotLocked reinitializes slot id's bookkeeping for a fresh thread:
// allocates (or reuses) its stack region, writes the canary, clears
// Disabled/Delayed, sets/clears Suspended, and zeros the delay counter.
// Caller must hold k.mu.
func (k *Kernel) initSlotLocked(id uint8, entry EntryFunc, arg any, suspended bool) {
	s := k.slots[id]
	if s == nil {
		s = newSlot(k.sm.size[id])
		k.slots[id] = s
	}
	s.entry = entry
	s.arg = arg
	s.delay = 0
	if k.cfg.UseCanary {
		s.stack[0] = k.cfg.Canary
	}

	k.disabled &^= 1 << id
	k.delayed &^= 1 << id
	if suspended {
		k.suspended |= 1 << id
	} else {
		k.suspended &^= 1 << id
	}
}

// ensureSlotGoroutine launches the permanent goroutine backing slot id if
// it hasn't been launched yet. The goroutine survives disable/recreate
// cycles on the same index — "a disabled thread's stack slot is simply
// reusable" is realized as the same parked goroutine picking up whatever
// entry/arg initSlotLocked most recently installed.
func (k *Kernel) ensureSlotGoroutine(id uint8) {
	k.mu.Lock()
	s := k.slots[id]
	started := s.started
	if !started {
		s.started = true
	}
	k.mu.Unlock()
	if !started {
		go k.slotMain(id)
	}
}

func (k *Kernel) slotMain(id uint8) {
	for {
		<-k.slots[id].turn
		k.runOneGeneration(id)
	}
}

// runOneGeneration runs the slot's current entry function, recovering
// from the reenterSentinel panic that Create/ReplaceSelf/Disable(self)
// use to abandon the current call stack and fall back to slotMain's loop
// without returning control anywhere in between.
func (k *Kernel) runOneGeneration(id uint8) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(reenterSentinel); ok {
				return
			}
			panic(r)
		}
	}()

	s := k.slots[id]
	entry, arg := s.entry, s.arg
	entry(k, id, arg)

	// Contract violation: entry returned. The real kernel's behavior here
	// is undefined; this simulator defines it as disabling the slot and
	// reporting it, rather than leaving the goroutine in limbo.
	k.reportEntryReturned(id)
}

func (k *Kernel) reportEntryReturned(id uint8) {
	k.mu.Lock()
	k.disabled |= 1 << id
	k.mu.Unlock()
	if k.onAssert != nil {
		k.onAssert(fmt.Sprintf("thread %d entry point returned", id), "kernel", 0)
	}
}
