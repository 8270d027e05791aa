package kernel

import (
	"testing"
	"time"
)

func TestMillis_AdvancesWithTicker(t *testing.T) {
	cfg, err := NewConfig(WithThreads(1), WithTickInterval(uint32(time.Millisecond)))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k.StartTicker()
	defer k.Shutdown()

	start := k.Millis()
	time.Sleep(50 * time.Millisecond)
	end := k.Millis()
	if end <= start {
		t.Errorf("Millis did not advance: start=%d end=%d", start, end)
	}
}

func TestStartTicker_IsIdempotent(t *testing.T) {
	cfg := newTestConfig(t, 1)
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k.StartTicker()
	k.StartTicker()
	k.Shutdown()
}

// TestSleep_YieldsUntilDelayExpires verifies that a sleeping thread does
// not become runnable again until its delay has ticked down, while a
// sibling thread continues to run in the meantime.
func TestSleep_YieldsUntilDelayExpires(t *testing.T) {
	cfg, err := NewConfig(WithThreads(2), WithTickInterval(uint32(time.Millisecond)))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k.StartTicker()
	defer k.Shutdown()

	k.Create(1, func(k *Kernel, id uint8, arg any) {
		for i := 0; i < 500; i++ {
			k.Yield()
		}
		k.DisableSelf()
	}, false, nil)

	const sleepMS = 30
	woke := make(chan uint32, 1)
	start := k.Millis()
	k.Boot(func(k *Kernel, id uint8, arg any) {
		k.Sleep(sleepMS)
		woke <- k.Millis()
		k.DisableSelf()
	}, nil)

	select {
	case end := <-woke:
		if end-start < sleepMS {
			t.Errorf("woke after %dms, want at least %dms", end-start, sleepMS)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sleep to expire")
	}
}

// TestSleepLong_HandlesDelaysAboveUint16Max verifies that SleepLong chunks
// a delay exceeding a single 16-bit counter into multiple Sleep calls and
// that the full requested duration elapses.
func TestSleepLong_HandlesDelaysAboveUint16Max(t *testing.T) {
	cfg, err := NewConfig(WithThreads(1), WithTickInterval(10_000)) // 10us ticks
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k.StartTicker()
	defer k.Shutdown()

	const delay = 70000 // exceeds the 65535 limit of a single Sleep call
	woke := make(chan uint32, 1)
	start := k.Millis()
	k.Boot(func(k *Kernel, id uint8, arg any) {
		k.SleepLong(delay)
		woke <- k.Millis()
		k.DisableSelf()
	}, nil)

	select {
	case end := <-woke:
		if end-start < delay {
			t.Errorf("SleepLong returned after %d ticks, want at least %d", end-start, delay)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SleepLong to expire")
	}
}

func TestSleep_ZeroIsPlainYield(t *testing.T) {
	cfg := newTestConfig(t, 2)
	k, err := New(cfg, noopOverflow, noopAssert)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	otherRan := make(chan struct{})
	k.Create(1, func(k *Kernel, id uint8, arg any) {
		close(otherRan)
		k.DisableSelf()
	}, false, nil)

	notDelayed := make(chan bool, 1)
	checked := make(chan struct{})
	k.Boot(func(k *Kernel, id uint8, arg any) {
		k.Sleep(0)
		notDelayed <- !k.Sleeping(0)
		close(checked)
		k.DisableSelf()
	}, nil)

	select {
	case <-otherRan:
	case <-time.After(time.Second):
		t.Fatal("sibling thread never ran after Sleep(0)")
	}
	select {
	case ok := <-notDelayed:
		if !ok {
			t.Error("Sleep(0) should not mark the slot delayed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for slot 0 to resume after Sleep(0)")
	}
	<-checked
}
