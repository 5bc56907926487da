package commands

import (
	"github.com/urfave/cli/v2"
)

// GlobalFlags - флаги, общие для всех команд
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "./config/config.yaml",
			Usage:   "Path to config file",
			EnvVars: []string{"CAMNODE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "Enable development logging",
		},
	}
}

// GetCommands возвращает все доступные команды
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetServeCommand(),
		GetCheckRegistrarCommand(),
		GetCaptureCommand(),
		GetVersionCommand(),
	}
}
