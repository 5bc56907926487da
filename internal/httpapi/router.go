package httpapi

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

// NodeStatus - то, что HTTP сервер знает об узле
type NodeStatus interface {
	ClientConnected() bool
	Uptime() time.Duration
	Touch()
}

// Status - ответ GET /status
type Status struct {
	IP        string `json:"ip"`
	WSPort    int    `json:"wsPort"`
	Uptime    int64  `json:"uptime"`
	Connected bool   `json:"connected"`
}

var infoPage = template.Must(template.New("info").Parse(`<!DOCTYPE html>
<html>
<head><title>ESP32-CAM WebSocket Server</title></head>
<body>
<h1>ESP32-CAM WebSocket Server</h1>
<p>WebSocket URL: {{.URL}}</p>
<p>Use the ESP32 Client app to view the stream.</p>
</body>
</html>
`))

// WebSocketURL формирует адрес видеопотока для клиентов
func WebSocketURL(ip string, port int) string {
	return fmt.Sprintf("ws://%s:%d/ws", ip, port)
}

// NewRouter создает роутер статусного сервера с логированием, recovery и CORS
func NewRouter(cfg *config.Config, node NodeStatus, localIP func() string, logger *zap.Logger) http.Handler {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	registerRoutes(router, cfg, node, localIP)

	if !cfg.Security.EnableCORS {
		return router
	}
	return cors.New(cors.Options{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(router)
}

// NewTestRouter создает роутер для тестов
func NewTestRouter(cfg *config.Config, node NodeStatus, localIP func() string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, cfg, node, localIP)
	return router
}

func registerRoutes(router *gin.Engine, cfg *config.Config, node NodeStatus, localIP func() string) {
	touch := touchMiddleware(node)

	router.GET("/", touch, func(c *gin.Context) {
		var page bytes.Buffer
		if err := infoPage.Execute(&page, struct{ URL string }{WebSocketURL(localIP(), cfg.WSPort)}); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
	})

	router.GET("/status", touch, func(c *gin.Context) {
		c.JSON(http.StatusOK, Status{
			IP:        localIP(),
			WSPort:    cfg.WSPort,
			Uptime:    int64(node.Uptime() / time.Second),
			Connected: node.ClientConnected(),
		})
	})

	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found")
	})
}

// touchMiddleware отмечает активность после успешного ответа
func touchMiddleware(node NodeStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < http.StatusBadRequest {
			node.Touch()
		}
	}
}
