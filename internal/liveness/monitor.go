package liveness

import (
	"sync"
	"time"
)

// State - состояние монитора активности
type State int

const (
	// Active - была активность HTTP или WebSocket в пределах окна
	Active State = iota
	// Idle - активности не было дольше таймаута; терминальное состояние до перезапуска
	Idle
)

func (s State) String() string {
	if s == Idle {
		return "idle"
	}
	return "active"
}

// Monitor отслеживает последнюю активность клиентов.
// HTTP обработчики вызывают Touch из своих горутин, поэтому поля защищены мьютексом.
type Monitor struct {
	timeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	seen         bool
	state        State
}

// NewMonitor запускает первое окно в момент start
func NewMonitor(timeout time.Duration, start time.Time) *Monitor {
	return &Monitor{timeout: timeout, lastActivity: start}
}

// Touch отмечает активность клиента
func (m *Monitor) Touch(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Idle {
		return
	}
	m.lastActivity = now
	m.seen = true
}

// Check вычисляет состояние на момент now. Пока подключен WebSocket клиент,
// окно продлевается, а флаг seen сбрасывается для следующего окна.
func (m *Monitor) Check(now time.Time, clientAttached bool) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Idle {
		return Idle
	}

	if clientAttached {
		if now.Sub(m.lastActivity) > m.timeout {
			m.lastActivity = now
			m.seen = false
		}
		return Active
	}

	if now.Sub(m.lastActivity) > m.timeout {
		m.state = Idle
		return Idle
	}
	return Active
}

// Reset начинает новое окно с момента now. Вызывается, когда узел
// становится доступен клиентам.
func (m *Monitor) Reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActivity = now
	m.seen = false
	m.state = Active
}

// Seen сообщает, была ли активность в текущем окне
func (m *Monitor) Seen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}

// LastActivity возвращает время последней активности
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Timeout возвращает длину окна
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}
