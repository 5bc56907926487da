package restart

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ExitCode - код выхода, по которому супервизор (systemd, docker) перезапускает узел
const ExitCode = 3

// Restarter выполняет полный перезапуск устройства
type Restarter interface {
	Restart() error
}

// ExitRestarter завершает процесс, перезапуск выполняет супервизор
type ExitRestarter struct {
	logger *zap.Logger
	exit   func(int)
}

// NewExitRestarter создает рестартер через os.Exit
func NewExitRestarter(logger *zap.Logger) *ExitRestarter {
	return &ExitRestarter{logger: logger.Named("restart"), exit: os.Exit}
}

// Restart завершает процесс с кодом ExitCode
func (r *ExitRestarter) Restart() error {
	r.logger.Warn("Restarting via process exit", zap.Int("exit_code", ExitCode))
	_ = r.logger.Sync()
	r.exit(ExitCode)
	return nil
}

// New создает рестартер по режиму из конфигурации: exit или reboot
func New(mode string, logger *zap.Logger) (Restarter, error) {
	switch mode {
	case "exit", "":
		return NewExitRestarter(logger), nil
	case "reboot":
		return newRebootRestarter(logger), nil
	default:
		return nil, fmt.Errorf("unknown restart mode %q", mode)
	}
}
