package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"camera-node/internal/camera"
)

// GetCaptureCommand возвращает команду снимка одного кадра
func GetCaptureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture one JPEG frame to a file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "frame.jpg",
				Usage:   "Output file",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "How long to wait for the first frame",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			return runCapture(ctx, c.String("out"), c.Duration("timeout"))
		},
	}
}

func runCapture(ctx *CommandContext, out string, timeout time.Duration) error {
	src, err := camera.NewSource(ctx.Config.Camera, ctx.Logger)
	if err != nil {
		return fmt.Errorf("camera init failed: %w", err)
	}
	driver := camera.NewDriver(src, ctx.Logger)
	defer driver.Close()

	// источник command отдает кадры только после старта внешней программы
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = timeout

	var fb *camera.Frame
	err = backoff.Retry(func() error {
		var err error
		fb, err = driver.Acquire()
		return err
	}, eb)
	if err != nil {
		return err
	}
	defer driver.Release(fb)

	if err := os.WriteFile(out, fb.Data, 0o644); err != nil {
		return err
	}

	ctx.Logger.Info("Frame captured",
		zap.String("file", out),
		zap.Int("bytes", len(fb.Data)),
		zap.Int("width", fb.Width),
		zap.Int("height", fb.Height))
	return nil
}
