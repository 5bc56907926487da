package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"camera-node/internal/app"
	"camera-node/internal/node"
	"camera-node/internal/restart"
)

// GetServeCommand возвращает команду запуска узла
func GetServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the camera node",
		Description: `Start the status HTTP server, the WebSocket frame streamer and the node loop.

Examples:
  camera-node serve --config ./config/config.yaml
  camera-node serve --http-port 8080 --ws-port 8081`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "Status HTTP port",
			},
			&cli.IntFlag{
				Name:  "ws-port",
				Usage: "WebSocket port",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			return runServe(ctx)
		},
	}
}

func runServe(ctx *CommandContext) error {
	sigCtx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.NewApplicationWithConfig(sigCtx, ctx.Config, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Startup failed", zap.Error(err))
		return err
	}

	err = application.Run(sigCtx)
	if errors.Is(err, node.ErrRestart) {
		// рестартер не завершил процесс (ошибка reboot); отдаем код супервизору
		return cli.Exit(err.Error(), restart.ExitCode)
	}
	return err
}
