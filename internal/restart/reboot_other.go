//go:build !linux

package restart

import "go.uber.org/zap"

func newRebootRestarter(logger *zap.Logger) Restarter {
	logger.Warn("Reboot mode is only supported on linux, falling back to exit")
	return NewExitRestarter(logger)
}
