package storychain

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerArmFires(t *testing.T) {
	t.Parallel()

	m := NewTimerManager()

	fired := make(chan struct{})
	m.Arm("R1", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerRearmReplaces(t *testing.T) {
	t.Parallel()

	m := NewTimerManager()

	var first int32
	fired := make(chan struct{})

	m.Arm("R1", 50*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	m.Arm("R1", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("replacement timer did not fire")
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&first) != 0 {
		t.Error("replaced timer must not fire")
	}
}

func TestTimerDisarm(t *testing.T) {
	t.Parallel()

	m := NewTimerManager()

	var fired int32
	m.Arm("R1", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	m.Disarm("R1")

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("disarmed timer must not fire")
	}

	// Disarming an unknown room is a no-op.
	m.Disarm("R2")
}

func TestTimerStopAll(t *testing.T) {
	t.Parallel()

	m := NewTimerManager()

	var fired int32
	m.Arm("R1", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	m.Arm("R2", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	m.StopAll()

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("stopped timers must not fire")
	}
}
