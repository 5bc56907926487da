package node

import (
	"sync"
	"time"
)

// State - состояние соединений узла. Меняется циклом, читается HTTP обработчиками.
type State struct {
	mu           sync.RWMutex
	bootTime     time.Time
	sessions     map[string]struct{}
	streamActive bool
	lastFrame    time.Time
	framesSent   uint64
	captureFails uint64
}

// NewState создает состояние на момент загрузки
func NewState(boot time.Time) *State {
	return &State{bootTime: boot, sessions: make(map[string]struct{})}
}

// ClientConnected сообщает, подключен ли WebSocket клиент
func (s *State) ClientConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions) > 0
}

// StreamActive сообщает, включена ли отправка кадров
func (s *State) StreamActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamActive
}

// Uptime возвращает время с момента загрузки
func (s *State) Uptime(now time.Time) time.Duration {
	return now.Sub(s.bootTime)
}

// FramesSent возвращает число разосланных кадров
func (s *State) FramesSent() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.framesSent
}

// CaptureFailures возвращает число неудачных снимков
func (s *State) CaptureFailures() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captureFails
}

func (s *State) attach(id string) {
	s.mu.Lock()
	s.sessions[id] = struct{}{}
	s.streamActive = true
	s.mu.Unlock()
}

func (s *State) detach(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *State) setStreaming(on bool) {
	s.mu.Lock()
	s.streamActive = on
	s.mu.Unlock()
}
