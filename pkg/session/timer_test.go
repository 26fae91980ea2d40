package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerSlot_ArmReplaces(t *testing.T) {
	var ts timerSlot
	var first, second atomic.Int32

	ts.Arm(20*time.Millisecond, func(uint64) { first.Add(1) })
	ts.Arm(20*time.Millisecond, func(uint64) { second.Add(1) })

	time.Sleep(80 * time.Millisecond)
	if n := first.Load(); n != 0 {
		t.Errorf("superseded timer fired %d times; want 0", n)
	}
	if n := second.Load(); n != 1 {
		t.Errorf("live timer fired %d times; want 1", n)
	}
}

func TestTimerSlot_CancelPreventsFire(t *testing.T) {
	var ts timerSlot
	var fired atomic.Int32

	ts.Arm(20*time.Millisecond, func(uint64) { fired.Add(1) })
	ts.Cancel()

	time.Sleep(80 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("cancelled timer fired %d times; want 0", n)
	}
	if ts.Armed() {
		t.Error("Armed() = true after Cancel()")
	}
}

func TestTimerSlot_CancelIdempotent(t *testing.T) {
	var ts timerSlot
	ts.Cancel()
	ts.Cancel()

	ts.Arm(20*time.Millisecond, func(uint64) {})
	ts.Cancel()
	ts.Cancel()
}

func TestTimerSlot_GenAdvancesOnArmAndCancel(t *testing.T) {
	var ts timerSlot

	g0 := ts.Gen()
	ts.Arm(time.Hour, func(uint64) {})
	g1 := ts.Gen()
	ts.Cancel()
	g2 := ts.Gen()

	if g1 <= g0 || g2 <= g1 {
		t.Errorf("generations = %d, %d, %d; want strictly increasing", g0, g1, g2)
	}
}

func TestTimerSlot_FireSeesOwnGeneration(t *testing.T) {
	var ts timerSlot
	got := make(chan uint64, 1)

	ts.Arm(10*time.Millisecond, func(gen uint64) { got <- gen })
	want := ts.Gen()

	select {
	case gen := <-got:
		if gen != want {
			t.Errorf("fired with gen %d; want %d", gen, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerSlot_ConcurrentArmSingleFire(t *testing.T) {
	var ts timerSlot
	var fired atomic.Int32

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.Arm(10*time.Millisecond, func(uint64) { fired.Add(1) })
		}()
	}
	wg.Wait()

	time.Sleep(60 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("fired %d times; want exactly 1", n)
	}
}
