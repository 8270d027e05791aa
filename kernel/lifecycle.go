// lifecycle.go - Create, ReplaceSelf, Disable, Suspend, Resume, Yield

package kernel

// CurrentThread returns the slot id of the currently running thread.
func (k *Kernel) CurrentThread() uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Enabled reports whether slot id holds a valid thread context.
func (k *Kernel) Enabled(id uint8) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id >= k.cfg.Threads {
		return false
	}
	return k.disabled&(1<<id) == 0
}

// Suspended reports whether slot id is marked do-not-schedule.
func (k *Kernel) Suspended(id uint8) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id >= k.cfg.Threads {
		return false
	}
	return k.suspended&(1<<id) != 0
}

// Sleeping reports whether slot id is delayed (sleeping until its counter
// expires).
func (k *Kernel) Sleeping(id uint8) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id >= k.cfg.Threads {
		return false
	}
	return k.delayed&(1<<id) != 0
}

// Create constructs a new thread in slot id running entry(k, id, arg).
// It fails (returns false) if entry is nil or id is out of range. If id
// is the currently running slot, Create never returns: see
// enterSchedulerNoSave / createImpl.
func (k *Kernel) Create(id uint8, entry EntryFunc, suspended bool, arg any) bool {
	if entry == nil || id >= k.cfg.Threads {
		return false
	}

	k.mu.Lock()
	self := id == k.current
	k.mu.Unlock()

	if self {
		k.createImpl(id, entry, suspended, arg)
		// unreachable: createImpl never returns for a self-target
		panic("kernel: createImpl returned for self-target")
	}

	k.mu.Lock()
	k.initSlotLocked(id, entry, arg, suspended)
	k.mu.Unlock()
	k.ensureSlotGoroutine(id)
	k.poke()
	return true
}

// createImpl is the shared reinitialization path for Create(self) and
// ReplaceSelf. Per the Open Question decided in DESIGN.md, ReplaceSelf
// calls this directly rather than routing through the public Create, so
// the no-save scheduler re-entry below happens exactly once regardless of
// which wrapper was used.
func (k *Kernel) createImpl(id uint8, entry EntryFunc, suspended bool, arg any) {
	k.mu.Lock()
	k.initSlotLocked(id, entry, arg, suspended)
	k.mu.Unlock()
	k.poke()
	k.enterSchedulerNoSave()
}

// ReplaceSelf is equivalent to Create(current, entry, suspended, arg) and
// never returns, except for a nil entry: then, like Create, it does
// nothing and returns at once.
func (k *Kernel) ReplaceSelf(entry EntryFunc, suspended bool, arg any) {
	if entry == nil {
		return
	}
	id := k.CurrentThread()
	k.createImpl(id, entry, suspended, arg)
}

// Disable sets Disabled[id]. If id is the current slot, this never
// returns: the scheduler is entered without saving context.
func (k *Kernel) Disable(id uint8) {
	if id >= k.cfg.Threads {
		return
	}
	k.mu.Lock()
	self := id == k.current
	k.disabled |= 1 << id
	k.mu.Unlock()
	k.poke()

	if self {
		k.enterSchedulerNoSave()
	}
}

// DisableSelf is Disable(current) and never returns.
func (k *Kernel) DisableSelf() {
	id := k.CurrentThread()
	k.Disable(id)
}

// Suspend sets Suspended[id]. If id is the current slot, this yields
// (returns once resumed and reselected).
func (k *Kernel) Suspend(id uint8) {
	if id >= k.cfg.Threads {
		return
	}
	k.mu.Lock()
	self := id == k.current
	k.suspended |= 1 << id
	k.mu.Unlock()
	k.poke()

	if self {
		k.enterSchedulerSaving(id)
	}
}

// SuspendSelf is Suspend(current).
func (k *Kernel) SuspendSelf() {
	id := k.CurrentThread()
	k.Suspend(id)
}

// Resume clears Suspended[id]. It is a no-op for an out-of-range id and
// does not itself cause a reschedule — the resumed thread runs the next
// time the scheduler is entered.
func (k *Kernel) Resume(id uint8) {
	if id >= k.cfg.Threads {
		return
	}
	k.mu.Lock()
	k.suspended &^= 1 << id
	k.mu.Unlock()
	k.poke()
}

// Yield saves the current context (in this simulator: parks the calling
// goroutine) and enters the scheduler.
func (k *Kernel) Yield() {
	id := k.CurrentThread()
	k.enterSchedulerSaving(id)
}
