package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config представляет конфигурацию узла камеры
type Config struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
	WSPort   int    `yaml:"ws_port"`
	DeviceID string `yaml:"device_id"`

	Network   NetworkConfig   `yaml:"network"`
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Registrar RegistrarConfig `yaml:"registrar"`
	Security  SecurityConfig  `yaml:"security"`

	// Debug включает отладочный режим gin и development логгер
	Debug bool `yaml:"debug"`

	// Logging
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// NetworkConfig - подключение к сети
type NetworkConfig struct {
	Interface    string        `yaml:"interface"`
	SSID         string        `yaml:"ssid"`
	Password     string        `yaml:"password"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CameraConfig - параметры сенсора и источника кадров
type CameraConfig struct {
	Source      string   `yaml:"source"` // testpattern, command
	Command     []string `yaml:"command"`
	FrameSize   string   `yaml:"frame_size"`
	JPEGQuality int      `yaml:"jpeg_quality"`
	XCLKFreqHz  int      `yaml:"xclk_freq_hz"`
	FBCount     int      `yaml:"fb_count"`
	Pins        Pins     `yaml:"pins"`

	FlashLEDPin  int    `yaml:"flash_led_pin"`
	FlashLEDPath string `yaml:"flash_led_path"`
}

// Pins - распиновка модуля камеры
type Pins struct {
	PWDN  int `yaml:"pwdn"`
	Reset int `yaml:"reset"`
	XCLK  int `yaml:"xclk"`
	SIOD  int `yaml:"siod"`
	SIOC  int `yaml:"sioc"`
	Y9    int `yaml:"y9"`
	Y8    int `yaml:"y8"`
	Y7    int `yaml:"y7"`
	Y6    int `yaml:"y6"`
	Y5    int `yaml:"y5"`
	Y4    int `yaml:"y4"`
	Y3    int `yaml:"y3"`
	Y2    int `yaml:"y2"`
	VSYNC int `yaml:"vsync"`
	HREF  int `yaml:"href"`
	PCLK  int `yaml:"pclk"`
}

// StreamConfig - параметры WebSocket стрима
type StreamConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	SendBuffer    int           `yaml:"send_buffer"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	LoopInterval  time.Duration `yaml:"loop_interval"`
}

// LivenessConfig - таймаут перезапуска
type LivenessConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RestartDelay time.Duration `yaml:"restart_delay"`
	RestartMode  string        `yaml:"restart_mode"` // exit, reboot
}

// RegistrarConfig - облачная база данных
type RegistrarConfig struct {
	Backend            string        `yaml:"backend"` // firebase, dynamodb, mqtt, none
	DatabaseURL        string        `yaml:"database_url"`
	APIKey             string        `yaml:"api_key"`
	UserEmail          string        `yaml:"user_email"`
	UserPassword       string        `yaml:"user_password"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	SetupWait          time.Duration `yaml:"setup_wait"`

	DynamoDB struct {
		Table  string `yaml:"table"`
		Region string `yaml:"region"`
	} `yaml:"dynamodb"`

	MQTT struct {
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
		QoS         byte   `yaml:"qos"`
	} `yaml:"mqtt"`
}

// SecurityConfig - CORS для страницы статуса
type SecurityConfig struct {
	EnableCORS     bool     `yaml:"enable_cors"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoadConfig загружает конфигурацию из файла поверх значений по умолчанию
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv подставляет секреты из переменных окружения
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CAMNODE_WIFI_PASSWORD"); v != "" {
		c.Network.Password = v
	}
	if v := os.Getenv("CAMNODE_API_KEY"); v != "" {
		c.Registrar.APIKey = v
	}
	if v := os.Getenv("CAMNODE_USER_PASSWORD"); v != "" {
		c.Registrar.UserPassword = v
	}
}

// Validate проверяет значения, без которых узел не запустится
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.WSPort <= 0 || c.WSPort > 65535 {
		return fmt.Errorf("invalid ws_port %d", c.WSPort)
	}
	if c.HTTPPort == c.WSPort {
		return fmt.Errorf("http_port and ws_port must differ (both %d)", c.HTTPPort)
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.Stream.FrameInterval <= 0 {
		return fmt.Errorf("stream.frame_interval must be positive")
	}
	if c.Liveness.Timeout <= 0 {
		return fmt.Errorf("liveness.timeout must be positive")
	}
	switch c.Registrar.Backend {
	case "firebase", "dynamodb", "mqtt", "none":
	default:
		return fmt.Errorf("unknown registrar backend %q", c.Registrar.Backend)
	}
	return nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию (константы прошивки AI-Thinker ESP32-CAM)
func GetDefaultConfig() *Config {
	cfg := &Config{
		Host:     "0.0.0.0",
		HTTPPort: 80,
		WSPort:   81,
		DeviceID: "esp32cam_001",
		Network: NetworkConfig{
			MaxRetries:   20,
			InitialDelay: 300 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		Camera: CameraConfig{
			Source:      "testpattern",
			FrameSize:   "VGA",
			JPEGQuality: 12,
			XCLKFreqHz:  20000000,
			FBCount:     1,
			Pins: Pins{
				PWDN:  32,
				Reset: -1,
				XCLK:  0,
				SIOD:  26,
				SIOC:  27,
				Y9:    35,
				Y8:    34,
				Y7:    39,
				Y6:    36,
				Y5:    21,
				Y4:    19,
				Y3:    18,
				Y2:    5,
				VSYNC: 25,
				HREF:  23,
				PCLK:  22,
			},
			FlashLEDPin: 4,
		},
		Stream: StreamConfig{
			FrameInterval: 100 * time.Millisecond, // ~10 FPS
			SendBuffer:    2,
			PingInterval:  30 * time.Second,
			WriteTimeout:  5 * time.Second,
			LoopInterval:  5 * time.Millisecond,
		},
		Liveness: LivenessConfig{
			Timeout:      60 * time.Second,
			RestartDelay: time.Second,
			RestartMode:  "exit",
		},
		Registrar: RegistrarConfig{
			Backend:            "none",
			TokenTTL:           3000 * time.Second,
			InsecureSkipVerify: true,
			WriteTimeout:       10 * time.Second,
			SetupWait:          2 * time.Second,
		},
		Security: SecurityConfig{
			EnableCORS:     true,
			AllowedOrigins: []string{"*"},
		},
	}
	cfg.Registrar.DynamoDB.Table = "camera_devices"
	cfg.Registrar.MQTT.TopicPrefix = "camera-node"
	cfg.Registrar.MQTT.QoS = 1
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}
