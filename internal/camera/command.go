package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	readChunkSize = 32 * 1024
	maxFrameBytes = 4 * 1024 * 1024
	staleAfter    = 5 * time.Second
	retryDelay    = time.Second
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// CommandSource читает MJPEG поток из stdout внешней программы
// (libcamera-vid, ffmpeg ...) и хранит последний полный кадр.
type CommandSource struct {
	argv   []string
	size   FrameSize
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	latest []byte
	at     time.Time

	// буфер, выдаваемый наружу в Acquire
	out []byte
}

// NewCommandSource запускает команду захвата в фоне
func NewCommandSource(argv []string, size FrameSize, logger *zap.Logger) (*CommandSource, error) {
	if len(argv) == 0 {
		return nil, errors.New("camera.command is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &CommandSource{
		argv:   argv,
		size:   size,
		logger: logger.Named("camera_cmd"),
		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s, nil
}

func (s *CommandSource) run() {
	for {
		if err := s.runOnce(); err != nil {
			s.logger.Warn("Capture command exited", zap.Strings("argv", s.argv), zap.Error(err))
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func (s *CommandSource) runOnce() error {
	cmd := exec.CommandContext(s.ctx, s.argv[0], s.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.argv[0], err)
	}

	s.logger.Info("Capture command started", zap.Strings("argv", s.argv))
	s.pump(stdout)
	return cmd.Wait()
}

func (s *CommandSource) pump(r io.Reader) {
	var split jpegSplitter
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, frame := range split.Feed(buf[:n]) {
				s.store(frame)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("Capture stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *CommandSource) store(frame []byte) {
	s.mu.Lock()
	s.latest = append(s.latest[:0], frame...)
	s.at = time.Now()
	s.mu.Unlock()
}

// Acquire копирует последний кадр в выходной буфер
func (s *CommandSource) Acquire() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latest) == 0 || time.Since(s.at) > staleAfter {
		return nil, ErrCaptureFailed
	}

	s.out = append(s.out[:0], s.latest...)
	return &Frame{
		Data:      s.out,
		Width:     s.size.Width,
		Height:    s.size.Height,
		Timestamp: s.at,
	}, nil
}

// Release ничего не делает: выходной буфер переиспользуется
func (s *CommandSource) Release(*Frame) {}

// Close останавливает команду захвата
func (s *CommandSource) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// jpegSplitter выделяет JPEG кадры из MJPEG потока по маркерам SOI/EOI
type jpegSplitter struct {
	buf []byte
}

// Feed добавляет кусок потока и возвращает полностью собранные кадры
func (j *jpegSplitter) Feed(chunk []byte) [][]byte {
	j.buf = append(j.buf, chunk...)

	var frames [][]byte
	for {
		start := bytes.Index(j.buf, jpegSOI)
		if start < 0 {
			// сохраняем последний байт: маркер мог разорваться между кусками
			if n := len(j.buf); n > 0 && j.buf[n-1] == 0xFF {
				j.buf = append(j.buf[:0], 0xFF)
			} else {
				j.buf = j.buf[:0]
			}
			return frames
		}
		if start > 0 {
			j.buf = append(j.buf[:0], j.buf[start:]...)
		}

		end := bytes.Index(j.buf[len(jpegSOI):], jpegEOI)
		if end < 0 {
			if len(j.buf) > maxFrameBytes {
				j.buf = j.buf[:0]
			}
			return frames
		}
		end += len(jpegSOI) + len(jpegEOI)

		frame := make([]byte, end)
		copy(frame, j.buf[:end])
		frames = append(frames, frame)

		j.buf = append(j.buf[:0], j.buf[end:]...)
	}
}
