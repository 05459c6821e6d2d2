package potfand

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mdouchement/logger"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttQoS               = 1

	statusOnline  = "online"
	statusOffline = "offline"
)

// MQTT publishes fan states and receives fan commands from a broker.
type MQTT struct {
	client pahomqtt.Client
	prefix string
	log    logger.Logger

	mu      sync.Mutex
	handler func(fan string, call FanCall)
}

// ConnectMQTT connects to the broker. A retained offline status is
// registered as last will so consumers notice crashes.
func ConnectMQTT(cfg MQTTConfig, log logger.Logger) (*MQTT, error) {
	m := &MQTT{
		prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		log:    log,
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetWill(m.statusTopic(), statusOffline, mqttQoS, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		m.onConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.log.WithError(err).Error("[mqtt] Connection lost")
	})

	m.client = pahomqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return m, nil
}

// Publish sends the state of the fan as a retained message.
func (m *MQTT) Publish(state FanState) {
	payload, err := json.Marshal(state)
	if err != nil {
		m.log.WithError(err).Error("[mqtt] Could not serialize fan state") // Should never happen
		return
	}

	// Not awaited, paho queues the message while reconnecting.
	m.client.Publish(m.stateTopic(state.Name), mqttQoS, true, payload)
}

// Subscribe registers the handler of fan commands.
// The subscription is restored on every reconnection.
func (m *MQTT) Subscribe(handler func(fan string, call FanCall)) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()

	return m.subscribe()
}

func (m *MQTT) Close() {
	token := m.client.Publish(m.statusTopic(), mqttQoS, true, statusOffline)
	token.WaitTimeout(mqttPublishTimeout)

	m.client.Disconnect(mqttDisconnectQuiesce)
}

func (m *MQTT) onConnect() {
	m.log.Info("[mqtt] Connected")
	m.client.Publish(m.statusTopic(), mqttQoS, true, statusOnline)

	if err := m.subscribe(); err != nil {
		m.log.WithError(err).Error("[mqtt] Could not restore subscription")
	}
}

func (m *MQTT) subscribe() error {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return nil
	}

	token := m.client.Subscribe(m.prefix+"/fan/+/set", mqttQoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		fan, ok := m.fanFromTopic(msg.Topic())
		if !ok {
			return
		}

		var call FanCall
		if err := json.Unmarshal(msg.Payload(), &call); err != nil {
			m.log.WithError(err).Errorf("[mqtt] Invalid command for fan %s", fan)
			return
		}

		handler(fan, call)
	})
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt: subscribe: timeout")
	}
	return token.Error()
}

func (m *MQTT) stateTopic(fan string) string {
	return m.prefix + "/fan/" + fan + "/state"
}

func (m *MQTT) statusTopic() string {
	return m.prefix + "/status"
}

// fanFromTopic extracts the fan name of a `<prefix>/fan/<name>/set` topic.
func (m *MQTT) fanFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.prefix+"/fan/")
	if !ok {
		return "", false
	}

	fan, ok := strings.CutSuffix(rest, "/set")
	if !ok || fan == "" || strings.Contains(fan, "/") {
		return "", false
	}
	return fan, true
}
