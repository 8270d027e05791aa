package kernel

import (
	"sync"
	"testing"
	"time"
)

// TestProperty_DisabledSlotNeverSelected exercises the invariant that a
// slot which disables itself on its first run is never handed the CPU
// again, across a mix of threads that stay runnable for several rounds.
// The disabled slot reports in only if its entry is started a second time.
func TestProperty_DisabledSlotNeverSelected(t *testing.T) {
	const threads = 5
	const rounds = 4
	const disabledSlot = 2
	cfg := newTestConfig(t, threads)
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := make(chan uint8, threads*rounds)
	var wg sync.WaitGroup

	activeEntry := func() EntryFunc {
		wg.Add(1)
		return func(k *Kernel, id uint8, arg any) {
			for i := 0; i < rounds; i++ {
				events <- id
				k.Yield()
			}
			wg.Done()
			k.DisableSelf()
		}
	}

	disabledEntered := false
	k.Create(disabledSlot, func(k *Kernel, id uint8, arg any) {
		if disabledEntered {
			events <- id
		}
		disabledEntered = true
		k.DisableSelf()
	}, false, nil)

	for i := uint8(1); i < threads; i++ {
		if i == disabledSlot {
			continue
		}
		k.Create(i, activeEntry(), false, nil)
	}
	k.Boot(activeEntry(), nil)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for active threads to finish")
	}
	close(events)

	for id := range events {
		if id == disabledSlot {
			t.Fatalf("disabled slot %d was scheduled", disabledSlot)
		}
	}
}

// TestProperty_SuspendedSlotDoesNotRunUntilResumed exercises spec.md's
// suspend/resume contract: a suspended slot is skipped by the scheduler
// regardless of how many scheduling rounds pass, and becomes eligible
// again only after an explicit Resume.
func TestProperty_SuspendedSlotDoesNotRunUntilResumed(t *testing.T) {
	cfg := newTestConfig(t, 2)
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ran := make(chan struct{})
	k.Create(1, func(k *Kernel, id uint8, arg any) {
		close(ran)
		k.DisableSelf()
	}, true, nil) // created suspended

	select {
	case <-ran:
		t.Fatal("suspended slot ran before ever being resumed")
	case <-time.After(50 * time.Millisecond):
	}

	gate := make(chan struct{})
	k.Boot(func(k *Kernel, id uint8, arg any) {
		for i := 0; i < 20; i++ {
			k.Yield()
		}
		close(gate)
		k.Resume(1)
		k.Yield() // let the now-runnable slot 1 take a turn
		k.DisableSelf()
	}, nil)

	select {
	case <-gate:
	case <-time.After(time.Second):
		t.Fatal("slot 0 never completed its yield loop")
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("slot 1 did not run after being resumed")
	}
}

// TestProperty_ReplaceSelfDiscardsPriorEntryState verifies that after
// ReplaceSelf, only the new entry ever runs in that slot — the old
// entry's closure is never re-entered, even though the same goroutine and
// stack region back both generations.
func TestProperty_ReplaceSelfDiscardsPriorEntryState(t *testing.T) {
	cfg := newTestConfig(t, 1)
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var oldRanAgain bool
	newRan := make(chan struct{})
	k.Boot(func(k *Kernel, id uint8, arg any) {
		k.ReplaceSelf(func(k *Kernel, id uint8, arg any) {
			close(newRan)
			k.DisableSelf()
		}, false, nil)
		oldRanAgain = true // unreachable: ReplaceSelf never returns
	}, nil)

	select {
	case <-newRan:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the replacement entry to run")
	}
	if oldRanAgain {
		t.Error("code after ReplaceSelf executed; it must never return")
	}
}
