package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"camera-node/internal/app/commands"
)

func main() {
	app := &cli.App{
		Name:           "camera-node",
		Usage:          "JPEG camera streaming node with WebSocket delivery and cloud registration",
		Version:        commands.Version,
		Flags:          commands.GlobalFlags(),
		Commands:       commands.GetCommands(),
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
