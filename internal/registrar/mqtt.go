package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

// MQTT публикует каждое значение retained сообщением в топик <prefix><path>
type MQTT struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTT создает клиента и начинает подключение к брокеру без ожидания
func NewMQTT(cfg config.RegistrarConfig, deviceID string, logger *zap.Logger) (*MQTT, error) {
	if cfg.MQTT.Broker == "" {
		return nil, errors.New("registrar.mqtt.broker is required")
	}

	client := mqtt.NewClient(clientOptions(cfg, deviceID, logger.Named("mqtt")))
	client.Connect()

	return NewMQTTWithClient(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, cfg.WriteTimeout, logger), nil
}

// BrokerURL дополняет адрес вида host:port схемой tcp://
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func clientOptions(cfg config.RegistrarConfig, deviceID string, log *zap.Logger) *mqtt.ClientOptions {
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = deviceID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.MQTT.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", zap.String("broker", cfg.MQTT.Broker), zap.String("client_id", clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", zap.Error(err))
	}
	return opts
}

// NewMQTTWithClient создает бэкенд поверх готового клиента
func NewMQTTWithClient(client mqtt.Client, prefix string, qos byte, timeout time.Duration, logger *zap.Logger) *MQTT {
	return &MQTT{client: client, prefix: prefix, qos: qos, timeout: timeout, logger: logger.Named("mqtt")}
}

// Name возвращает имя бэкенда
func (m *MQTT) Name() string { return "mqtt" }

// Pump ничего не делает: переподключением занимается paho
func (m *MQTT) Pump(context.Context) {}

// Ready сообщает, что соединение с брокером открыто
func (m *MQTT) Ready() bool { return m.client.IsConnectionOpen() }

// Topic строит топик для пути ключа
func (m *MQTT) Topic(path string) string {
	p := strings.Trim(m.prefix, "/")
	if p == "" {
		return strings.TrimLeft(path, "/")
	}
	return p + "/" + strings.TrimLeft(path, "/")
}

// Set публикует JSON значение с флагом retain
func (m *MQTT) Set(ctx context.Context, path string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", path, err)
	}

	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	token := m.client.Publish(m.Topic(path), m.qos, true, payload)
	if !token.WaitTimeout(timeout) {
		return &Error{Code: transportErrorCode, Message: "publish timeout"}
	}
	if err := token.Error(); err != nil {
		return &Error{Code: transportErrorCode, Message: err.Error()}
	}
	return nil
}

// Close отключается от брокера
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
