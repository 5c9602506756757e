package scheduler

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Timer — планировщик на реальных таймерах.
type Timer struct {
	mu     sync.Mutex
	next   domain.TaskHandle
	timers map[domain.TaskHandle]*time.Timer
}

// NewTimer создаёт планировщик на time.AfterFunc.
func NewTimer() *Timer {
	return &Timer{timers: make(map[domain.TaskHandle]*time.Timer)}
}

// Schedule запускает fn в отдельной горутине через delay.
func (s *Timer) Schedule(delay time.Duration, fn func()) domain.TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := s.next
	s.timers[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, alive := s.timers[handle]
		delete(s.timers, handle)
		s.mu.Unlock()
		if alive {
			fn()
		}
	})
	return handle
}

// Cancel останавливает задачу, если она ещё не запущена.
func (s *Timer) Cancel(handle domain.TaskHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[handle]
	if !ok {
		return false
	}
	delete(s.timers, handle)
	t.Stop()
	return true
}

// Pending возвращает количество ожидающих задач.
func (s *Timer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

var _ domain.Scheduler = (*Timer)(nil)
