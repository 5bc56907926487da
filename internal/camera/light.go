package camera

import (
	"os"

	"go.uber.org/zap"
)

// Light - вспышка модуля. Если путь к sysfs GPIO не задан, вызовы ничего не делают.
type Light struct {
	pin    int
	path   string
	logger *zap.Logger
}

// NewLight создает вспышку на GPIO pin. path - файл value в /sys/class/gpio.
func NewLight(pin int, path string, logger *zap.Logger) *Light {
	return &Light{pin: pin, path: path, logger: logger.Named("flash")}
}

// Set включает или выключает вспышку
func (l *Light) Set(on bool) error {
	if l.path == "" {
		l.logger.Debug("Flash LED not wired", zap.Int("pin", l.pin), zap.Bool("on", on))
		return nil
	}

	value := []byte("0")
	if on {
		value = []byte("1")
	}
	return os.WriteFile(l.path, value, 0o644)
}
