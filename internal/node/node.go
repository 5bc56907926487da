package node

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"camera-node/internal/camera"
	"camera-node/internal/config"
	"camera-node/internal/liveness"
	"camera-node/internal/restart"
	"camera-node/internal/stream"
)

// ErrRestart - цикл остановлен, потому что выполнен перезапуск
var ErrRestart = errors.New("device restart issued")

// Тексты протокола WebSocket
const (
	CmdStreamStart = "stream_start"
	CmdStreamStop  = "stream_stop"

	WelcomeMessage = "Connected to ESP32-CAM WebSocket Server"
	AckStarted     = "Streaming started"
	AckStopped     = "Streaming stopped"
)

// FrameSource - драйвер камеры
type FrameSource interface {
	Acquire() (*camera.Frame, error)
	Release(*camera.Frame)
}

// Streamer - WebSocket сервер
type Streamer interface {
	Poll() []stream.Event
	SendText(sessionID, text string) bool
	BroadcastBinary(data []byte) int
}

// Registrar - облачная регистрация, обслуживается на каждой итерации
type Registrar interface {
	Pump(ctx context.Context)
}

// Deps - зависимости узла
type Deps struct {
	Camera    FrameSource
	Streamer  Streamer
	Registrar Registrar
	Restarter restart.Restarter
	Clock     func() time.Time
	// Sleep используется для задержки перед перезапуском
	Sleep func(ctx context.Context, d time.Duration)
}

// Node - кооперативный цикл устройства
type Node struct {
	cfg       *config.Config
	logger    *zap.Logger
	state     *State
	monitor   *liveness.Monitor
	camera    FrameSource
	streamer  Streamer
	registrar Registrar
	restarter restart.Restarter
	clock     func() time.Time
	sleep     func(ctx context.Context, d time.Duration)

	restarted bool
}

// New создает узел. Окно активности начинается в момент создания.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Node {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := clock()

	return &Node{
		cfg:       cfg,
		logger:    logger.Named("node"),
		state:     NewState(now),
		monitor:   liveness.NewMonitor(cfg.Liveness.Timeout, now),
		camera:    deps.Camera,
		streamer:  deps.Streamer,
		registrar: deps.Registrar,
		restarter: deps.Restarter,
		clock:     clock,
		sleep:     sleep,
	}
}

// Start открывает окно активности заново. Время подключения к сети и
// пробной записи не должно засчитываться в таймаут.
func (n *Node) Start() {
	now := n.clock()
	n.monitor.Reset(now)
	n.logger.Info("Liveness window started",
		zap.Duration("timeout", n.monitor.Timeout()),
		zap.Time("at", now))
}

// State возвращает состояние соединений
func (n *Node) State() *State { return n.state }

// Monitor возвращает монитор активности
func (n *Node) Monitor() *liveness.Monitor { return n.monitor }

// Touch отмечает HTTP активность
func (n *Node) Touch() {
	n.monitor.Touch(n.clock())
}

// Uptime возвращает время работы
func (n *Node) Uptime() time.Duration {
	return n.state.Uptime(n.clock())
}

// ClientConnected сообщает, подключен ли WebSocket клиент
func (n *Node) ClientConnected() bool {
	return n.state.ClientConnected()
}

// Run повторяет Tick, пока не отменен контекст или не выполнен перезапуск
func (n *Node) Run(ctx context.Context) error {
	interval := n.cfg.Stream.LoopInterval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := n.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick - одна итерация: облако, события WebSocket, кадр, проверка таймаута
func (n *Node) Tick(ctx context.Context) error {
	if n.restarted {
		return ErrRestart
	}

	if n.registrar != nil {
		n.registrar.Pump(ctx)
	}

	for _, ev := range n.streamer.Poll() {
		n.handleEvent(ev)
	}

	now := n.clock()
	n.pushFrame(now)

	if n.monitor.Check(now, n.state.ClientConnected()) == liveness.Idle {
		return n.restart(ctx)
	}
	return nil
}

func (n *Node) handleEvent(ev stream.Event) {
	now := n.clock()

	switch ev.Type {
	case stream.Connected:
		n.logger.Info("Client connected",
			zap.String("session", ev.SessionID),
			zap.String("remote", ev.RemoteAddr),
			zap.String("url", ev.URL))
		n.state.attach(ev.SessionID)
		n.monitor.Touch(now)
		n.streamer.SendText(ev.SessionID, WelcomeMessage)

	case stream.Disconnected:
		n.state.detach(ev.SessionID)
		n.logger.Info("Client disconnected",
			zap.String("session", ev.SessionID),
			zap.Uint64("frames_sent", n.state.FramesSent()),
			zap.Uint64("capture_failures", n.state.CaptureFailures()))

	case stream.Text:
		cmd := string(ev.Payload)
		n.logger.Debug("Text received", zap.String("session", ev.SessionID), zap.String("text", cmd))
		n.monitor.Touch(now)

		switch cmd {
		case CmdStreamStart:
			n.state.setStreaming(true)
			n.streamer.SendText(ev.SessionID, AckStarted)
		case CmdStreamStop:
			n.state.setStreaming(false)
			n.streamer.SendText(ev.SessionID, AckStopped)
		}

	default:
		// бинарные сообщения от клиента не ожидаются
	}
}

func (n *Node) pushFrame(now time.Time) {
	if !n.state.ClientConnected() || !n.state.StreamActive() {
		return
	}

	n.state.mu.Lock()
	if now.Sub(n.state.lastFrame) < n.cfg.Stream.FrameInterval {
		n.state.mu.Unlock()
		return
	}
	n.state.lastFrame = now
	n.state.mu.Unlock()

	fb, err := n.camera.Acquire()
	if err != nil {
		n.state.mu.Lock()
		n.state.captureFails++
		n.state.mu.Unlock()
		n.logger.Warn("Camera capture failed", zap.Error(err))
		return
	}

	n.streamer.BroadcastBinary(fb.Data)
	n.camera.Release(fb)

	n.state.mu.Lock()
	n.state.framesSent++
	n.state.mu.Unlock()
}

func (n *Node) restart(ctx context.Context) error {
	n.restarted = true
	n.logger.Warn("No connections detected, restarting",
		zap.Duration("timeout", n.monitor.Timeout()),
		zap.Time("last_activity", n.monitor.LastActivity()))

	n.sleep(ctx, n.cfg.Liveness.RestartDelay)

	if err := n.restarter.Restart(); err != nil {
		n.logger.Error("Restart failed", zap.Error(err))
	}
	return ErrRestart
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
