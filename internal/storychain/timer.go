package storychain

import (
	"sync"
	"time"
)

func NewTimerManager() *TimerManager {
	return &TimerManager{timers: map[string]*time.Timer{}}
}

// TimerManager schedules one-shot per-turn deadlines. Correctness does not
// depend on cancellation: a fired callback carries the epoch it was armed for
// and the coordinator drops it on mismatch. Stopping the previous timer when
// re-arming only spares the no-op wakeup.
type TimerManager struct {
	mtx    sync.Mutex
	timers map[string]*time.Timer
}

// Arm schedules fire after d, replacing the room's previous timer.
func (m *TimerManager) Arm(roomKey string, d time.Duration, fire func()) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if prev, ok := m.timers[roomKey]; ok {
		prev.Stop()
	}

	m.timers[roomKey] = time.AfterFunc(d, fire)
}

// Disarm stops the room's pending timer if any.
func (m *TimerManager) Disarm(roomKey string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if t, ok := m.timers[roomKey]; ok {
		t.Stop()
		delete(m.timers, roomKey)
	}
}

func (m *TimerManager) StopAll() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}
