// Package mqtt publishes committed dispatch commands to an MQTT broker so
// site controllers can subscribe without polling the HTTP API.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/powerboxtech/mpc-service/core/logger"
	"github.com/powerboxtech/mpc-service/core/model"
)

// Config defines the broker connection parameters. Enabled false disables
// the MQTT path entirely.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "mpc-service"
	}
	if c.Topic == "" {
		c.Topic = "mpc/battery/dispatch"
	}
}

// Publisher announces dispatch outcomes.
type Publisher interface {
	PublishOutcome(model.DispatchOutcome) error
	Close()
}

// dispatchMessage is the wire payload: just the actionable parts of an
// outcome, not the full trajectory.
type dispatchMessage struct {
	CycleID        string  `json:"cycle_id"`
	Timestamp      string  `json:"timestamp"`
	BatteryPowerKW float64 `json:"battery_power_kw"`
	Status         string  `json:"status"`
}

type pahoClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoPublisher implements Publisher using Eclipse Paho.
type PahoPublisher struct {
	cli   pahoClient
	topic string
	qos   byte
	log   logger.Logger
}

// NewPahoPublisher connects to the broker.
func NewPahoPublisher(cfg Config, log logger.Logger) (*PahoPublisher, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { log.Infof("mqtt connected to %s", cfg.Broker) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("mqtt connection lost: %v", err) }

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &PahoPublisher{cli: cli, topic: cfg.Topic, qos: cfg.QoS, log: log}, nil
}

// PublishOutcome sends the committed command to the dispatch topic.
func (p *PahoPublisher) PublishOutcome(out model.DispatchOutcome) error {
	payload, err := json.Marshal(dispatchMessage{
		CycleID:        out.CycleID,
		Timestamp:      out.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		BatteryPowerKW: out.BatteryPowerKW,
		Status:         string(out.Status),
	})
	if err != nil {
		return err
	}
	token := p.cli.Publish(p.topic, p.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() { p.cli.Disconnect(250) }

// MockPublisher records published outcomes for tests.
type MockPublisher struct {
	mu       sync.Mutex
	Outcomes []model.DispatchOutcome
	FailNext bool
}

// NewMockPublisher creates a MockPublisher.
func NewMockPublisher() *MockPublisher { return &MockPublisher{} }

// PublishOutcome records the outcome or fails once when FailNext is set.
func (m *MockPublisher) PublishOutcome(out model.DispatchOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("publish failed")
	}
	m.Outcomes = append(m.Outcomes, out)
	return nil
}

// Close implements Publisher.
func (m *MockPublisher) Close() {}

// Published returns a copy of the recorded outcomes.
func (m *MockPublisher) Published() []model.DispatchOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DispatchOutcome(nil), m.Outcomes...)
}
