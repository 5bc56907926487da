package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"time"
)

// TestPattern генерирует синтетические JPEG кадры с бегущей полосой.
// Используется без реального сенсора.
type TestPattern struct {
	size    FrameSize
	quality int
	img     *image.RGBA
	buf     bytes.Buffer
	seq     int
}

// NewTestPattern создает генератор. esp32Quality задается в шкале
// сенсора OV2640 (0..63, меньше - лучше).
func NewTestPattern(size FrameSize, esp32Quality int) *TestPattern {
	return &TestPattern{
		size:    size,
		quality: jpegQuality(esp32Quality),
		img:     image.NewRGBA(image.Rect(0, 0, size.Width, size.Height)),
	}
}

func jpegQuality(esp32Quality int) int {
	q := 100 - esp32Quality*100/63
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Acquire кодирует следующий кадр в собственный буфер
func (p *TestPattern) Acquire() (*Frame, error) {
	p.draw()
	p.seq++

	p.buf.Reset()
	if err := jpeg.Encode(&p.buf, p.img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, err
	}

	return &Frame{
		Data:      p.buf.Bytes(),
		Width:     p.size.Width,
		Height:    p.size.Height,
		Timestamp: time.Now(),
	}, nil
}

// Release ничего не делает: буфер переиспользуется на следующем Acquire
func (p *TestPattern) Release(*Frame) {}

// Close освобождает изображение
func (p *TestPattern) Close() error {
	p.img = nil
	return nil
}

func (p *TestPattern) draw() {
	w, h := p.size.Width, p.size.Height
	barWidth := w / 8
	if barWidth == 0 {
		barWidth = 1
	}
	offset := (p.seq * 8) % w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 64, A: 255}
			if (x-offset+w)%w < barWidth {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			p.img.SetRGBA(x, y, c)
		}
	}
}
