package commands

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"camera-node/internal/config"
)

// CommandContext содержит общий контекст для всех команд
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
}

// NewCommandContext создает логгер и загружает конфигурацию.
// Если файл конфигурации не читается, используются значения по умолчанию.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, cfgErr := config.LoadConfig(c.String("config"))
	if cfgErr != nil {
		cfg = config.GetDefaultConfig()
	}

	level := cfg.Logging.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger, err := createLogger(level, cfg.Logging.Format, c.Bool("debug") || cfg.Debug)
	if err != nil {
		return nil, err
	}

	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults",
			zap.String("path", c.String("config")),
			zap.Error(cfgErr))
	}

	cfg.ApplyEnv()
	if c.IsSet("http-port") {
		cfg.HTTPPort = c.Int("http-port")
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if c.IsSet("ws-port") {
		cfg.WSPort = c.Int("ws-port")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &CommandContext{
		Logger: logger,
		Config: cfg,
	}, nil
}

// createLogger создает логгер
func createLogger(level, format string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(logLevel)
	if format == "console" {
		config.Encoding = "console"
	}

	return config.Build()
}
