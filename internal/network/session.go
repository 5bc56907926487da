package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

// ErrUnavailable - сеть не поднялась за отведенное число попыток
var ErrUnavailable = errors.New("network unavailable")

// AddrProbe возвращает текущий IPv4 адрес интерфейса или ошибку, если его нет
type AddrProbe func(iface string) (net.IP, error)

// Associator подключает устройство к точке доступа
type Associator func(ctx context.Context, ssid, password string) error

// Session - сетевое подключение узла
type Session struct {
	cfg       config.NetworkConfig
	logger    *zap.Logger
	probe     AddrProbe
	associate Associator

	mu sync.RWMutex
	ip net.IP
}

// NewSession создает сессию с системными probe и nmcli
func NewSession(cfg config.NetworkConfig, logger *zap.Logger) *Session {
	return &Session{
		cfg:       cfg,
		logger:    logger.Named("network"),
		probe:     InterfaceIPv4,
		associate: NmcliAssociate,
	}
}

// WithProbe подменяет определение адреса (для тестов)
func (s *Session) WithProbe(p AddrProbe) *Session {
	s.probe = p
	return s
}

// WithAssociator подменяет подключение к WiFi
func (s *Session) WithAssociator(a Associator) *Session {
	s.associate = a
	return s
}

// Connect ждет появления IPv4 адреса с ограниченным числом попыток.
// Возвращает ErrUnavailable, если попытки исчерпаны.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.SSID != "" && s.associate != nil {
		s.logger.Info("Associating with access point", zap.String("ssid", s.cfg.SSID))
		if err := s.associate(ctx, s.cfg.SSID, s.cfg.Password); err != nil {
			s.logger.Warn("Association command failed", zap.Error(err))
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.InitialDelay
	eb.MaxInterval = s.cfg.MaxDelay
	eb.MaxElapsedTime = 0

	var policy backoff.BackOff = eb
	if s.cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(eb, uint64(s.cfg.MaxRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	op := func() error {
		attempt++
		ip, err := s.probe(s.cfg.Interface)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.ip = ip
		s.mu.Unlock()
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug("Waiting for network",
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempt, err)
	}

	s.logger.Info("Connected", zap.String("ip", s.LocalIP()), zap.Int("attempts", attempt))
	return nil
}

// LocalIP возвращает адрес, полученный при Connect
func (s *Session) LocalIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ip == nil {
		return "0.0.0.0"
	}
	return s.ip.String()
}

// InterfaceIPv4 ищет IPv4 адрес на интерфейсе iface. Пустое имя - первый
// поднятый интерфейс, кроме loopback.
func InterfaceIPv4(iface string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4, nil
			}
		}
	}

	if iface != "" {
		return nil, fmt.Errorf("no IPv4 address on %s", iface)
	}
	return nil, errors.New("no IPv4 address on any interface")
}

// NmcliAssociate подключается к WiFi через NetworkManager
func NmcliAssociate(ctx context.Context, ssid, password string) error {
	args := []string{"dev", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli: %w: %s", err, out)
	}
	return nil
}
