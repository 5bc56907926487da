package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"camera-node/internal/camera"
	"camera-node/internal/config"
	"camera-node/internal/httpapi"
	"camera-node/internal/network"
	"camera-node/internal/node"
	"camera-node/internal/registrar"
	"camera-node/internal/restart"
	"camera-node/internal/stream"
)

const shutdownTimeout = 10 * time.Second

// Application - основное приложение узла
type Application struct {
	config    *config.Config
	logger    *zap.Logger
	session   *network.Session
	driver    *camera.Driver
	streamer  *stream.Server
	registrar *registrar.Registrar
	node      *node.Node
	router    http.Handler
	server    *http.Server
}

// NewApplicationWithConfig собирает все компоненты. Ошибка камеры фатальна,
// ошибка облачного бэкенда только логируется: узел работает без регистрации.
func NewApplicationWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	logger.Info("Camera node starting",
		zap.String("device_id", cfg.DeviceID),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("ws_port", cfg.WSPort),
		zap.String("camera", cfg.Camera.Source),
		zap.String("frame_size", cfg.Camera.FrameSize))

	light := camera.NewLight(cfg.Camera.FlashLEDPin, cfg.Camera.FlashLEDPath, logger)
	if err := light.Set(false); err != nil {
		logger.Warn("Failed to switch flash LED off", zap.Error(err))
	}

	src, err := camera.NewSource(cfg.Camera, logger)
	if err != nil {
		return nil, fmt.Errorf("camera init failed: %w", err)
	}
	driver := camera.NewDriver(src, logger)
	logger.Info("Camera initialized")

	restarter, err := restart.New(cfg.Liveness.RestartMode, logger)
	if err != nil {
		_ = driver.Close()
		return nil, err
	}

	session := network.NewSession(cfg.Network, logger)
	streamer := stream.NewServer(cfg.Stream, logger)

	backend, err := registrar.NewBackend(ctx, cfg.Registrar, cfg.DeviceID, logger)
	if err != nil {
		logger.Error("Cloud backend unavailable, continuing without registration",
			zap.String("backend", cfg.Registrar.Backend),
			zap.Error(err))
		backend = registrar.Disabled{}
	}
	reg := registrar.New(backend, cfg.DeviceID, cfg.WSPort, session.LocalIP, cfg.Registrar.WriteTimeout, logger)

	n := node.New(cfg, node.Deps{
		Camera:    driver,
		Streamer:  streamer,
		Registrar: reg,
		Restarter: restarter,
	}, logger)

	router := httpapi.NewRouter(cfg, n, session.LocalIP, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
		Handler: router,
	}

	return &Application{
		config:    cfg,
		logger:    logger,
		session:   session,
		driver:    driver,
		streamer:  streamer,
		registrar: reg,
		node:      n,
		router:    router,
		server:    server,
	}, nil
}

// GetRouter возвращает роутер статусного сервера
func (app *Application) GetRouter() http.Handler {
	return app.router
}

// Run поднимает сеть, выполняет пробную запись, запускает HTTP и WebSocket
// серверы и цикл узла. Возвращает node.ErrRestart, если сработал таймаут.
func (app *Application) Run(ctx context.Context) error {
	if err := app.session.Connect(ctx); err != nil {
		app.close()
		return err
	}

	ip := app.session.LocalIP()
	app.logger.Info("Network ready",
		zap.String("ip", ip),
		zap.String("ws_url", httpapi.WebSocketURL(ip, app.config.WSPort)))

	if app.registrar.Enabled() {
		if err := app.registrar.TestConnection(ctx, app.config.Registrar.SetupWait); err != nil {
			app.logger.Warn("Cloud database test failed, registration may not work", zap.Error(err))
		}
	} else {
		app.logger.Info("Cloud registration disabled")
	}

	app.node.Start()

	errChan := make(chan error, 2)

	go func() {
		app.logger.Info("HTTP server started", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", app.config.Host, app.config.WSPort)
		if err := app.streamer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- app.node.Run(loopCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
		runErr = <-loopDone
	case err := <-errChan:
		app.logger.Error("Server failed", zap.Error(err))
		runErr = err
		cancelLoop()
		<-loopDone
	case err := <-loopDone:
		runErr = err
	}

	app.shutdown()

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.logger.Info("Stopping servers")
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := app.streamer.Stop(ctx); err != nil {
		app.logger.Error("WebSocket server shutdown failed", zap.Error(err))
	}
	app.close()
	app.logger.Info("Camera node stopped")
}

func (app *Application) close() {
	if err := app.registrar.Close(); err != nil {
		app.logger.Warn("Registrar close failed", zap.Error(err))
	}
	if err := app.driver.Close(); err != nil {
		app.logger.Warn("Camera close failed", zap.Error(err))
	}
}
