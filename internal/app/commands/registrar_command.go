package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"camera-node/internal/network"
	"camera-node/internal/registrar"
)

// GetCheckRegistrarCommand возвращает команду пробной записи в облачную базу
func GetCheckRegistrarCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-registrar",
		Usage: "Write the diagnostic value to the cloud database and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "register",
				Usage: "Also publish ip_address and ws_port",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			return runCheckRegistrar(c.Context, ctx, c.Bool("register"))
		},
	}
}

func runCheckRegistrar(parent context.Context, ctx *CommandContext, register bool) error {
	cfg := ctx.Config

	backend, err := registrar.NewBackend(parent, cfg.Registrar, cfg.DeviceID, ctx.Logger)
	if err != nil {
		return err
	}

	session := network.NewSession(cfg.Network, ctx.Logger)
	if register {
		if err := session.Connect(parent); err != nil {
			return err
		}
	}

	reg := registrar.New(backend, cfg.DeviceID, cfg.WSPort, session.LocalIP, cfg.Registrar.WriteTimeout, ctx.Logger)
	defer reg.Close()

	ctx.Logger.Info("Registrar configuration",
		zap.String("backend", backend.Name()),
		zap.String("database_url", cfg.Registrar.DatabaseURL),
		zap.String("path", registrar.DevicePath(cfg.DeviceID, "")))

	if !reg.Enabled() {
		return fmt.Errorf("registrar backend is disabled")
	}

	if err := reg.TestConnection(parent, cfg.Registrar.SetupWait); err != nil {
		return err
	}

	if register {
		reg.Pump(parent)
		if !reg.Registered() {
			return fmt.Errorf("backend %s not ready for registration", backend.Name())
		}
	}

	fmt.Println("Cloud database write OK")
	return nil
}
