package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"camera-node/internal/config"
)

type stubSource struct {
	frame    *Frame
	err      error
	released int
}

func (s *stubSource) Acquire() (*Frame, error) { return s.frame, s.err }
func (s *stubSource) Release(*Frame)           { s.released++ }
func (s *stubSource) Close() error             { return nil }

func TestDriverSingleOutstandingBuffer(t *testing.T) {
	src := &stubSource{frame: &Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}}
	d := NewDriver(src, zap.NewNop())

	fb, err := d.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !d.Outstanding() {
		t.Fatal("expected outstanding buffer")
	}

	if _, err := d.Acquire(); !errors.Is(err, ErrBufferBusy) {
		t.Fatalf("second Acquire err = %v, want ErrBufferBusy", err)
	}

	d.Release(fb)
	if d.Outstanding() {
		t.Fatal("buffer still outstanding after Release")
	}
	if src.released != 1 {
		t.Errorf("source released %d times, want 1", src.released)
	}

	// повторный Release не доходит до источника
	d.Release(fb)
	if src.released != 1 {
		t.Errorf("double release reached source")
	}
}

func TestDriverNilFrameIsCaptureFailure(t *testing.T) {
	d := NewDriver(&stubSource{}, zap.NewNop())

	if _, err := d.Acquire(); !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want ErrCaptureFailed", err)
	}
	if d.Outstanding() {
		t.Fatal("failed capture must not borrow a buffer")
	}
}

func TestDriverEmptyFrameReturnedToSource(t *testing.T) {
	src := &stubSource{frame: &Frame{}}
	d := NewDriver(src, zap.NewNop())

	if _, err := d.Acquire(); !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want ErrCaptureFailed", err)
	}
	if src.released != 1 {
		t.Errorf("source released %d times, want 1", src.released)
	}
	if d.Outstanding() {
		t.Fatal("empty frame must not stay borrowed")
	}
}

func TestTestPatternProducesJPEG(t *testing.T) {
	size, err := ParseFrameSize("QQVGA")
	if err != nil {
		t.Fatal(err)
	}
	p := NewTestPattern(size, 12)

	fb, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(fb.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Errorf("bounds = %v", b)
	}
	p.Release(fb)
}

func TestJPEGQualityScale(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 100},
		{12, 81},
		{63, 1},
		{100, 1},
	}
	for _, tt := range tests {
		if got := jpegQuality(tt.in); got != tt.want {
			t.Errorf("jpegQuality(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestJPEGSplitter(t *testing.T) {
	frameA := []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 4, 5, 0xFF, 0xD9}

	stream := append([]byte{0x00, 0x11}, frameA...)
	stream = append(stream, 0x22)
	stream = append(stream, frameB...)

	// режем поток так, чтобы маркеры разорвались между кусками
	var split jpegSplitter
	var got [][]byte
	for i := 0; i < len(stream); i += 3 {
		end := i + 3
		if end > len(stream) {
			end = len(stream)
		}
		got = append(got, split.Feed(stream[i:end])...)
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if !bytes.Equal(got[0], frameA) {
		t.Errorf("frame 0 = %x", got[0])
	}
	if !bytes.Equal(got[1], frameB) {
		t.Errorf("frame 1 = %x", got[1])
	}
}

func TestValidatePins(t *testing.T) {
	pins := config.GetDefaultConfig().Camera.Pins
	if err := ValidatePins(pins); err != nil {
		t.Fatalf("AI-Thinker pins rejected: %v", err)
	}

	pins.HREF = pins.PCLK
	if err := ValidatePins(pins); err == nil {
		t.Fatal("expected duplicate gpio error")
	}
}

func TestNewSourceUnknown(t *testing.T) {
	cfg := config.GetDefaultConfig().Camera
	cfg.Source = "v4l2"
	if _, err := NewSource(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestLightWritesSysfsValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	l := NewLight(4, path, zap.NewNop())

	if err := l.Set(false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0" {
		t.Errorf("value = %q", data)
	}

	if err := NewLight(4, "", zap.NewNop()).Set(true); err != nil {
		t.Errorf("unwired light returned %v", err)
	}
}
