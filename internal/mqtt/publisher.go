package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"suntrack/internal/tracker"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	logger      *slog.Logger
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Logger      *slog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, logger: logger}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg.TopicPrefix, logger), nil
}

func newPublisher(client mqtt.Client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:      client,
		topicPrefix: prefix,
		enabled:     true,
		logger:      logger,
	}
}

func (p *Publisher) PublishSun(s tracker.SunState) error {
	return p.publish("sun", map[string]interface{}{
		"city":       s.City,
		"status":     s.Status,
		"sunrise":    s.Sunrise,
		"sunset":     s.Sunset,
		"day_length": s.DayLength,
		"latitude":   s.Latitude,
		"longitude":  s.Longitude,
	}, s)
}

func (p *Publisher) PublishIP(s tracker.IPState) error {
	return p.publish("ip", map[string]interface{}{
		"city":        s.City,
		"postal_code": s.PostalCode,
		"country":     s.Country,
		"isp_name":    s.ISPName,
		"latitude":    s.Latitude,
		"longitude":   s.Longitude,
	}, s)
}

// publish sends one topic per field plus a retained JSON state topic.
func (p *Publisher) publish(group string, fields map[string]interface{}, state any) error {
	if !p.enabled {
		return nil
	}

	for name, value := range fields {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, group, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
		}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal %s state: %w", group, err)
	}

	stateTopic := fmt.Sprintf("%s/%s/state", p.topicPrefix, group)
	token := p.client.Publish(stateTopic, 0, true, stateJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish %s state: %w", group, token.Error())
	}

	return nil
}

func (p *Publisher) PublishHomeAssistantDiscovery() error {
	if !p.enabled {
		return nil
	}

	sensors := []struct {
		Name  string
		ID    string
		Group string
		Icon  string
	}{
		{"City", "city", "sun", "mdi:city"},
		{"Sunrise", "sunrise", "sun", "mdi:weather-sunset-up"},
		{"Sunset", "sunset", "sun", "mdi:weather-sunset-down"},
		{"Day Length", "day_length", "sun", "mdi:timer-sand"},
		{"IP City", "city", "ip", "mdi:ip-network"},
		{"IP Country", "country", "ip", "mdi:earth"},
		{"IP ISP", "isp_name", "ip", "mdi:router-network"},
	}

	for _, sensor := range sensors {
		uniqueID := fmt.Sprintf("suntrack_%s_%s", sensor.Group, sensor.ID)
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/suntrack/%s/config", uniqueID)

		config := map[string]interface{}{
			"name":        fmt.Sprintf("Suntrack %s", sensor.Name),
			"unique_id":   uniqueID,
			"state_topic": fmt.Sprintf("%s/%s/%s", p.topicPrefix, sensor.Group, sensor.ID),
			"icon":        sensor.Icon,
			"device": map[string]interface{}{
				"identifiers":  []string{"suntrack"},
				"name":         "Suntrack",
				"manufacturer": "suntrack",
			},
		}

		payload, _ := json.Marshal(config)
		token := p.client.Publish(discoveryTopic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to publish discovery for %s: %w", uniqueID, token.Error())
		}
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
