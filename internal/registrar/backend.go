package registrar

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"camera-node/internal/config"
)

// NewBackend создает бэкенд по registrar.backend
func NewBackend(ctx context.Context, cfg config.RegistrarConfig, deviceID string, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "firebase":
		return NewFirebase(cfg, logger)
	case "dynamodb":
		return NewDynamoDB(ctx, cfg, logger)
	case "mqtt":
		return NewMQTT(cfg, deviceID, logger)
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown registrar backend %q", cfg.Backend)
	}
}
