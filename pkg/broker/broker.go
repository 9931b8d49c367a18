// Package broker defines the BrokerPublisher boundary the core consumes
// (spec §6) and a Redis Pub/Sub-backed adapter, used in place of a real MQTT
// broker for local development and tests. A production deployment swaps in
// an MQTT-backed Publisher behind the same interface; the core never
// depends on the concrete transport.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// Publisher is the BrokerPublisher boundary from spec §6.
type Publisher interface {
	PublishSensorUpdate(ctx context.Context, sensor *flowmodel.Sensor, value string, attributes map[string]interface{}) error
	PublishAvailability(ctx context.Context, connID string, online bool, stableID string) error
	PublishAlert(ctx context.Context, alert *flowmodel.PerformanceAlert) error
	PublishDiscovery(ctx context.Context, payload DiscoveryPayload) error
}

// DiscoveryPayload describes one sensor for Home-Assistant-style MQTT
// discovery.
type DiscoveryPayload struct {
	StableDeviceID string           `json:"stable_device_id"`
	Sensor         *flowmodel.Sensor `json:"sensor"`
}

type sensorUpdateMsg struct {
	SensorID   string                 `json:"sensor_id"`
	Value      string                 `json:"value"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type availabilityMsg struct {
	ConnectionID string `json:"connection_id"`
	Online       bool   `json:"online"`
	StableID     string `json:"stable_id,omitempty"`
}

const (
	channelSensor       = "flowmesh:sensor"
	channelAvailability = "flowmesh:availability"
	channelAlert        = "flowmesh:alert"
	channelDiscovery    = "flowmesh:discovery"
)

// RedisPublisher implements Publisher over Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher builds a RedisPublisher backed by client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", channel, err)
	}
	return p.client.Publish(ctx, channel, data).Err()
}

// PublishSensorUpdate publishes a captured sensor value with its attributes.
func (p *RedisPublisher) PublishSensorUpdate(ctx context.Context, sensor *flowmodel.Sensor, value string, attributes map[string]interface{}) error {
	return p.publish(ctx, channelSensor+"|"+sensor.StableDeviceID, sensorUpdateMsg{
		SensorID:   sensor.SensorID,
		Value:      value,
		Attributes: attributes,
	})
}

// PublishAvailability announces a connection's online/offline transition.
func (p *RedisPublisher) PublishAvailability(ctx context.Context, connID string, online bool, stableID string) error {
	return p.publish(ctx, channelAvailability, availabilityMsg{
		ConnectionID: connID,
		Online:       online,
		StableID:     stableID,
	})
}

// PublishAlert publishes a performance alert (error/critical severities are
// the ones spec §4.8 requires to reach the broker, but any severity may be
// published through this adapter).
func (p *RedisPublisher) PublishAlert(ctx context.Context, alert *flowmodel.PerformanceAlert) error {
	return p.publish(ctx, channelAlert+"|"+alert.StableDeviceID, alert)
}

// PublishDiscovery publishes a sensor's discovery payload.
func (p *RedisPublisher) PublishDiscovery(ctx context.Context, payload DiscoveryPayload) error {
	return p.publish(ctx, channelDiscovery, payload)
}
