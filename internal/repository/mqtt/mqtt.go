package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	qos            = 1
	retryInterval  = 10 * time.Second
)

var errNotConnected = errors.New("mqtt broker not connected")

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
}

type message struct {
	Timestamp   time.Time          `json:"timestamp"`
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Counts      map[string]int     `json:"counts"`
	Metrics     map[string]float64 `json:"metrics"`
}

// TelemetryRepository publishes every telemetry point as a JSON message on
// {topic}/{source_id}.
type TelemetryRepository struct {
	client paho.Client
	pub    publisher
	topic  string
}

// New creates the client and starts connecting to broker. The client keeps
// retrying the first connection in the background and reconnects after a
// lost one, so a broker that is down at startup only delays publishing.
// connected reports whether the first attempt succeeded within the timeout.
func New(broker, clientID, topic string, log *logger.Logger) (*TelemetryRepository, bool, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.OnConnect = func(c paho.Client) {
		log.Info("MQTT connected to %s", broker)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		log.Warning("MQTT connection lost (%s): %v", broker, err)
	}

	client := paho.NewClient(opts)
	connected := false
	token := client.Connect()
	if token.WaitTimeout(connectTimeout) {
		if err := token.Error(); err != nil {
			client.Disconnect(0)
			return nil, false, fmt.Errorf("mqtt connection failed: %w", err)
		}
		connected = true
	}

	return &TelemetryRepository{client: client, pub: client, topic: topic}, connected, nil
}

// WritePoints publishes points in order and stops at the first failure.
// While the broker is unreachable it fails fast so the sink can retry.
func (r *TelemetryRepository) WritePoints(ctx context.Context, points []models.TelemetryPoint) error {
	if len(points) > 0 && !r.pub.IsConnectionOpen() {
		return errNotConnected
	}

	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(message{
			Timestamp:   p.Timestamp,
			Measurement: p.Measurement,
			Tags:        p.Tags,
			Counts:      p.Counts,
			Metrics:     p.Metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal point: %w", err)
		}

		topic := r.topic
		if id := p.Tags["source_id"]; id != "" {
			topic = topic + "/" + id
		}

		token := r.pub.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("mqtt publish timeout on %s", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish failed on %s: %w", topic, err)
		}
	}
	return nil
}

func (r *TelemetryRepository) Close() error {
	if r.client != nil {
		r.client.Disconnect(250)
	}
	return nil
}
