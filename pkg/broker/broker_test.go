package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/flowmesh/internal/testutil"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func recvMessage(t *testing.T, sub *redis.PubSub) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	return []byte(msg.Payload)
}

func TestPublishSensorUpdate(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewRedis(t)
	p := NewRedisPublisher(client)

	sub := client.Subscribe(ctx, channelSensor+"|D1")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sensor := &flowmodel.Sensor{SensorID: "temp", StableDeviceID: "D1"}
	if err := p.PublishSensorUpdate(ctx, sensor, "21.5", map[string]interface{}{"unit": "C"}); err != nil {
		t.Fatalf("PublishSensorUpdate: %v", err)
	}

	payload := recvMessage(t, sub)
	var decoded sensorUpdateMsg
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SensorID != "temp" || decoded.Value != "21.5" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublishAvailability(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewRedis(t)
	p := NewRedisPublisher(client)

	sub := client.Subscribe(ctx, channelAvailability)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := p.PublishAvailability(ctx, "conn-1", true, "D1"); err != nil {
		t.Fatalf("PublishAvailability: %v", err)
	}

	payload := recvMessage(t, sub)
	var decoded availabilityMsg
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Online || decoded.StableID != "D1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublishAlertAndDiscovery(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewRedis(t)
	p := NewRedisPublisher(client)

	alertSub := client.Subscribe(ctx, channelAlert+"|D1")
	defer alertSub.Close()
	if _, err := alertSub.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishAlert(ctx, &flowmodel.PerformanceAlert{StableDeviceID: "D1", Severity: flowmodel.SeverityCritical}); err != nil {
		t.Fatalf("PublishAlert: %v", err)
	}
	recvMessage(t, alertSub)

	discSub := client.Subscribe(ctx, channelDiscovery)
	defer discSub.Close()
	if _, err := discSub.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishDiscovery(ctx, DiscoveryPayload{StableDeviceID: "D1", Sensor: &flowmodel.Sensor{SensorID: "temp"}}); err != nil {
		t.Fatalf("PublishDiscovery: %v", err)
	}
	recvMessage(t, discSub)
}
