//go:build linux

package restart

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// RebootRestarter перезагружает машину целиком (нужен CAP_SYS_BOOT)
type RebootRestarter struct {
	logger *zap.Logger
}

func newRebootRestarter(logger *zap.Logger) Restarter {
	return &RebootRestarter{logger: logger.Named("restart")}
}

// Restart сбрасывает буферы ФС и перезагружает систему
func (r *RebootRestarter) Restart() error {
	r.logger.Warn("Rebooting system")
	_ = r.logger.Sync()

	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
