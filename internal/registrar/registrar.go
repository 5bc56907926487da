package registrar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// TestPath - путь диагностической записи при старте
	TestPath = "/test/connection"
	// TestValue - значение диагностической записи
	TestValue = "Hello from ESP32-CAM"
)

// ErrNotReady - бэкенд еще не прошел аутентификацию
var ErrNotReady = errors.New("registrar backend not ready")

// Error - ошибка облачной базы с кодом (HTTP статус или отрицательный код транспорта)
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// Hint возвращает подсказку по коду ошибки
func (e *Error) Hint() string {
	switch e.Code {
	case 401:
		return "authentication error - check your credentials"
	case 403:
		return "permission denied - check your database rules"
	case 404:
		return "database not found - check your database URL"
	default:
		return ""
	}
}

// Backend - клиент облачной key-value базы
type Backend interface {
	// Name - имя бэкенда для логов
	Name() string
	// Pump обслуживает аутентификацию и фоновые задачи; не блокирует
	Pump(ctx context.Context)
	// Ready сообщает, что аутентификация завершена и можно писать
	Ready() bool
	// Set синхронно записывает значение по пути
	Set(ctx context.Context, path string, value interface{}) error
	Close() error
}

// Registrar публикует сведения об устройстве ровно один раз за загрузку
type Registrar struct {
	backend      Backend
	logger       *zap.Logger
	deviceID     string
	wsPort       int
	localIP      func() string
	writeTimeout time.Duration

	registered bool
}

// New создает регистратор. localIP вызывается в момент регистрации.
func New(backend Backend, deviceID string, wsPort int, localIP func() string, writeTimeout time.Duration, logger *zap.Logger) *Registrar {
	return &Registrar{
		backend:      backend,
		logger:       logger.Named("registrar"),
		deviceID:     deviceID,
		wsPort:       wsPort,
		localIP:      localIP,
		writeTimeout: writeTimeout,
	}
}

// DevicePath возвращает путь поля устройства
func DevicePath(deviceID, field string) string {
	return fmt.Sprintf("/devices/%s/%s", deviceID, field)
}

// TestConnection пишет пробное значение, чтобы проверить правила базы.
// Ожидает готовности бэкенда не дольше wait. Результат только логируется вызывающим.
func (r *Registrar) TestConnection(ctx context.Context, wait time.Duration) error {
	r.logger.Info("Testing cloud database connection",
		zap.String("backend", r.backend.Name()),
		zap.String("path", TestPath))

	deadline := time.Now().Add(wait)
	for !r.backend.Ready() && time.Now().Before(deadline) {
		r.backend.Pump(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	fields := []zap.Field{zap.Bool("ready", r.backend.Ready())}
	if a, ok := r.backend.(interface{ Authenticated() bool }); ok {
		fields = append(fields, zap.Bool("authenticated", a.Authenticated()))
	}
	r.logger.Info("Cloud database status", fields...)

	if err := r.set(ctx, TestPath, TestValue); err != nil {
		r.logWriteError("Test write failed", TestPath, err)
		return err
	}

	r.logger.Info("Test write successful", zap.String("path", TestPath))
	return nil
}

// Pump вызывается на каждой итерации цикла. Как только бэкенд готов,
// однократно записывает IP адрес и порт WebSocket.
func (r *Registrar) Pump(ctx context.Context) {
	r.backend.Pump(ctx)

	if r.registered || !r.backend.Ready() {
		return
	}
	r.registered = true
	r.register(ctx)
}

// Enabled сообщает, настроен ли облачный бэкенд
func (r *Registrar) Enabled() bool {
	_, off := r.backend.(Disabled)
	return !off
}

// Registered сообщает, выполнялась ли регистрация в этой загрузке
func (r *Registrar) Registered() bool {
	return r.registered
}

func (r *Registrar) register(ctx context.Context) {
	ip := r.localIP()
	ipPath := DevicePath(r.deviceID, "ip_address")

	r.logger.Info("Sending device info",
		zap.String("backend", r.backend.Name()),
		zap.String("path", ipPath),
		zap.String("ip", ip),
		zap.Bool("ready", r.backend.Ready()))

	if err := r.set(ctx, ipPath, ip); err != nil {
		r.logWriteError("Failed to send IP address", ipPath, err)
	} else {
		r.logger.Info("IP address sent", zap.String("path", ipPath), zap.String("ip", ip))
	}

	portPath := DevicePath(r.deviceID, "ws_port")
	if err := r.set(ctx, portPath, r.wsPort); err != nil {
		r.logWriteError("Failed to send WebSocket port", portPath, err)
	} else {
		r.logger.Info("WebSocket port sent", zap.String("path", portPath), zap.Int("port", r.wsPort))
	}
}

func (r *Registrar) set(ctx context.Context, path string, value interface{}) error {
	if !r.backend.Ready() {
		return ErrNotReady
	}
	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	return r.backend.Set(wctx, path, value)
}

func (r *Registrar) logWriteError(msg, path string, err error) {
	fields := []zap.Field{zap.String("path", path), zap.Error(err)}

	var dbErr *Error
	if errors.As(err, &dbErr) {
		fields = append(fields, zap.Int("code", dbErr.Code), zap.String("message", dbErr.Message))
		if hint := dbErr.Hint(); hint != "" {
			fields = append(fields, zap.String("hint", hint))
		}
	}
	r.logger.Error(msg, fields...)
}

// Close закрывает бэкенд
func (r *Registrar) Close() error {
	return r.backend.Close()
}

// Disabled - бэкенд-заглушка, когда облачная регистрация выключена
type Disabled struct{}

func (Disabled) Name() string                                    { return "none" }
func (Disabled) Pump(context.Context)                            {}
func (Disabled) Ready() bool                                     { return false }
func (Disabled) Set(context.Context, string, interface{}) error { return ErrNotReady }
func (Disabled) Close() error                                    { return nil }
