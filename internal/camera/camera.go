package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"camera-node/internal/config"
)

var (
	// ErrCaptureFailed - драйвер не вернул кадр
	ErrCaptureFailed = errors.New("camera capture failed")
	// ErrBufferBusy - предыдущий кадр еще не возвращен драйверу
	ErrBufferBusy = errors.New("frame buffer already borrowed")
)

// Frame - один JPEG кадр. Буфер принадлежит источнику и
// действителен только до вызова Release.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Source - источник кадров (драйвер камеры)
type Source interface {
	Acquire() (*Frame, error)
	Release(*Frame)
	Close() error
}

// FrameSize - разрешение сенсора
type FrameSize struct {
	Name   string
	Width  int
	Height int
}

var frameSizes = map[string]FrameSize{
	"QQVGA": {"QQVGA", 160, 120},
	"QVGA":  {"QVGA", 320, 240},
	"CIF":   {"CIF", 400, 296},
	"VGA":   {"VGA", 640, 480},
	"SVGA":  {"SVGA", 800, 600},
	"XGA":   {"XGA", 1024, 768},
	"SXGA":  {"SXGA", 1280, 1024},
	"UXGA":  {"UXGA", 1600, 1200},
}

// ParseFrameSize возвращает разрешение по имени (VGA, SVGA, ...)
func ParseFrameSize(name string) (FrameSize, error) {
	fs, ok := frameSizes[name]
	if !ok {
		return FrameSize{}, fmt.Errorf("unknown frame size %q", name)
	}
	return fs, nil
}

// ValidatePins проверяет, что GPIO не используются дважды. -1 означает "не подключен".
func ValidatePins(p config.Pins) error {
	assigned := map[string]int{
		"pwdn": p.PWDN, "reset": p.Reset, "xclk": p.XCLK,
		"siod": p.SIOD, "sioc": p.SIOC,
		"y9": p.Y9, "y8": p.Y8, "y7": p.Y7, "y6": p.Y6,
		"y5": p.Y5, "y4": p.Y4, "y3": p.Y3, "y2": p.Y2,
		"vsync": p.VSYNC, "href": p.HREF, "pclk": p.PCLK,
	}

	used := make(map[int]string, len(assigned))
	for name, gpio := range assigned {
		if gpio < 0 {
			continue
		}
		if other, dup := used[gpio]; dup {
			return fmt.Errorf("gpio %d assigned to both %s and %s", gpio, other, name)
		}
		used[gpio] = name
	}
	return nil
}

// Driver оборачивает Source и гарантирует, что одновременно
// выдан не более чем один буфер кадра.
type Driver struct {
	src    Source
	logger *zap.Logger

	mu       sync.Mutex
	borrowed *Frame
}

// NewDriver создает драйвер поверх источника
func NewDriver(src Source, logger *zap.Logger) *Driver {
	return &Driver{src: src, logger: logger.Named("camera")}
}

// Acquire берет следующий кадр у источника
func (d *Driver) Acquire() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.borrowed != nil {
		return nil, ErrBufferBusy
	}

	fb, err := d.src.Acquire()
	if err != nil {
		return nil, err
	}
	if fb == nil {
		return nil, ErrCaptureFailed
	}
	if len(fb.Data) == 0 {
		d.src.Release(fb)
		return nil, ErrCaptureFailed
	}

	d.borrowed = fb
	return fb, nil
}

// Release возвращает кадр источнику
func (d *Driver) Release(fb *Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fb == nil || fb != d.borrowed {
		d.logger.Warn("Release of a frame that is not borrowed")
		return
	}
	d.borrowed = nil
	d.src.Release(fb)
}

// Outstanding сообщает, выдан ли сейчас буфер
func (d *Driver) Outstanding() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.borrowed != nil
}

// Close закрывает источник
func (d *Driver) Close() error {
	return d.src.Close()
}

// NewSource создает источник по конфигурации
func NewSource(cfg config.CameraConfig, logger *zap.Logger) (Source, error) {
	if err := ValidatePins(cfg.Pins); err != nil {
		return nil, fmt.Errorf("camera pins: %w", err)
	}

	size, err := ParseFrameSize(cfg.FrameSize)
	if err != nil {
		return nil, err
	}

	switch cfg.Source {
	case "testpattern", "":
		return NewTestPattern(size, cfg.JPEGQuality), nil
	case "command":
		src, err := NewCommandSource(cfg.Command, size, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}
