// Package publish mirrors playback frames onto an MQTT broker so other
// consumers (dashboards, recorders) can follow a dispatch.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/playback"
)

// Publisher receives every frame of a playback session.
type Publisher interface {
	Publish(session string, f playback.Frame) error
	Close()
}

// NewSession returns a fresh session id.
func NewSession() string { return uuid.NewString() }

type message struct {
	Session string `json:"session"`
	playback.Frame
}

type MQTT struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

// Dial connects to broker and returns a publisher writing under topic.
// A nil log means slog.Default.
func Dial(broker, clientID, topic string, log *slog.Logger) (*MQTT, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := clientOptions(broker, clientID, log)
	log.Debug("mqtt connecting", "broker", broker, "client", opts.ClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", broker, token.Error())
	}
	log.Info("mqtt connected", "broker", broker, "topic", topic)
	return NewMQTT(client, topic, log), nil
}

func clientOptions(broker, clientID string, log *slog.Logger) *mqtt.ClientOptions {
	if clientID == "" {
		clientID = "routeplay-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "broker", broker, "err", err)
	})
	return opts
}

func NewMQTT(client mqtt.Client, topic string, log *slog.Logger) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	return &MQTT{client: client, topic: strings.TrimRight(topic, "/"), log: log}
}

func (p *MQTT) Topic(session string) string {
	return p.topic + "/" + session
}

// Publish sends f at QoS 0 without waiting for the broker; it runs under
// the scheduler lock.
func (p *MQTT) Publish(session string, f playback.Frame) error {
	payload, err := json.Marshal(message{Session: session, Frame: f})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(session), 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

func (p *MQTT) Close() {
	p.client.Disconnect(250)
}

// Nop drops every frame. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, playback.Frame) error { return nil }
func (Nop) Close()                               {}
