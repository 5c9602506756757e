package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type manualTask struct {
	handle domain.TaskHandle
	due    time.Duration
	fn     func()
}

// Manual — детерминированный планировщик для тестов: время двигается
// только через Advance, задачи выполняются в вызывающей горутине.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	next  domain.TaskHandle
	tasks []manualTask
}

// NewManual создаёт планировщик с нулевым виртуальным временем.
func NewManual() *Manual {
	return &Manual{}
}

// Schedule ставит задачу на виртуальное время now+delay.
func (m *Manual) Schedule(delay time.Duration, fn func()) domain.TaskHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	m.next++
	m.tasks = append(m.tasks, manualTask{handle: m.next, due: m.now + delay, fn: fn})
	return m.next
}

// Cancel удаляет задачу из очереди.
func (m *Manual) Cancel(handle domain.TaskHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, task := range m.tasks {
		if task.handle == handle {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Advance сдвигает время на d и выполняет созревшие задачи по порядку срока.
// Задачи, запланированные во время Advance, тоже выполняются, если успевают созреть.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	fired := 0
	for {
		task, ok := m.popDue(target)
		if !ok {
			break
		}
		task.fn()
		fired++
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	return fired
}

func (m *Manual) popDue(target time.Duration) (manualTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return manualTask{}, false
	}
	sort.SliceStable(m.tasks, func(i, j int) bool { return m.tasks[i].due < m.tasks[j].due })
	if m.tasks[0].due > target {
		return manualTask{}, false
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	if task.due > m.now {
		m.now = task.due
	}
	return task, true
}

// Pending возвращает количество ожидающих задач.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

var _ domain.Scheduler = (*Manual)(nil)
