package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

// EventType - тип события WebSocket
type EventType int

const (
	Connected EventType = iota
	Disconnected
	Text
	Binary
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Event доставляется в основной цикл через Poll
type Event struct {
	Type       EventType
	SessionID  string
	RemoteAddr string
	URL        string
	Payload    []byte
}

const (
	eventBuffer = 64
	textBuffer  = 16
)

// Server - WebSocket сервер стрима. Соединения обслуживаются горутинами,
// но все события отдаются циклу узла через Poll.
type Server struct {
	cfg      config.StreamConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	events chan Event
	closed chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	sessions map[string]*session

	httpServer *http.Server
}

type session struct {
	id     string
	remote string
	conn   *websocket.Conn
	text   chan []byte
	frames chan []byte
	done   chan struct{}
}

// NewServer создает сервер
func NewServer(cfg config.StreamConfig, logger *zap.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	return &Server{
		cfg:    cfg,
		logger: logger.Named("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		events:   make(chan Event, eventBuffer),
		closed:   make(chan struct{}),
		sessions: make(map[string]*session),
	}
}

// Start слушает addr; путь запроса не важен (клиенты используют /ws)
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s,
	}
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return http.ErrServerClosed
	default:
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("WebSocket server started", zap.String("address", addr))
	return srv.ListenAndServe()
}

// Stop закрывает все сессии и останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.closed) })

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP выполняет upgrade и обслуживает сессию до отключения
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		remote: remoteHost(r.RemoteAddr),
		conn:   conn,
		text:   make(chan []byte, textBuffer),
		frames: make(chan []byte, s.cfg.SendBuffer),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.emit(Event{Type: Connected, SessionID: sess.id, RemoteAddr: sess.remote, URL: r.URL.RequestURI()})

	go s.writeLoop(sess)
	s.readLoop(sess)
}

func (s *Server) readLoop(sess *session) {
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()

		close(sess.done)
		sess.conn.Close()
		s.emit(Event{Type: Disconnected, SessionID: sess.id, RemoteAddr: sess.remote})
	}()

	for {
		messageType, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
				websocket.CloseAbnormalClosure) {
				s.logger.Debug("WebSocket read error", zap.String("session", sess.id), zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			s.emit(Event{Type: Text, SessionID: sess.id, RemoteAddr: sess.remote, Payload: message})
		case websocket.BinaryMessage:
			s.emit(Event{Type: Binary, SessionID: sess.id, RemoteAddr: sess.remote, Payload: message})
		}
	}
}

func (s *Server) writeLoop(sess *session) {
	ping := s.cfg.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		var (
			messageType int
			data        []byte
		)

		// текстовые ответы имеют приоритет над кадрами
		select {
		case data = <-sess.text:
			messageType = websocket.TextMessage
		default:
			select {
			case data = <-sess.text:
				messageType = websocket.TextMessage
			case data = <-sess.frames:
				messageType = websocket.BinaryMessage
			case <-ticker.C:
				messageType = websocket.PingMessage
			case <-sess.done:
				return
			}
		}

		if s.cfg.WriteTimeout > 0 {
			sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := sess.conn.WriteMessage(messageType, data); err != nil {
			s.logger.Debug("WebSocket write error", zap.String("session", sess.id), zap.Error(err))
			sess.conn.Close()
			return
		}
	}
}

func (s *Server) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// Poll забирает накопившиеся события без блокировки
func (s *Server) Poll() []Event {
	var out []Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// SendText ставит текстовое сообщение в очередь сессии
func (s *Server) SendText(sessionID, text string) bool {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case sess.text <- []byte(text):
		return true
	default:
		s.logger.Warn("Text queue full, dropping message", zap.String("session", sessionID))
		return false
	}
}

// BroadcastBinary копирует data и отдает всем сессиям. Если слот сессии
// занят предыдущим кадром, кадр для нее пропускается. Возвращает число сессий,
// получивших кадр.
func (s *Server) BroadcastBinary(data []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sessions) == 0 {
		return 0
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	sent := 0
	for _, sess := range s.sessions {
		select {
		case sess.frames <- frame:
			sent++
		default:
		}
	}
	return sent
}

// Count возвращает число подключенных сессий
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
