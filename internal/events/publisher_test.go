package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/events"
	"github.com/ravipendurty/netmiko-mcp-server/internal/testutil"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

func testDevice() models.DeviceConfig {
	return models.DeviceConfig{Host: "10.0.0.1", DeviceType: "cisco_ios", Username: "admin", Password: "secret"}
}

func TestSubject(t *testing.T) {
	p := events.NewNATSPublisher(nil, "", nil)
	assert.Equal(t, "netmiko.devices.connected", p.Subject(models.DeviceEventConnected))

	p = events.NewNATSPublisher(nil, "lab.events", nil)
	assert.Equal(t, "lab.events.config_applied", p.Subject(models.DeviceEventConfigApplied))
}

func TestLogPublisher(t *testing.T) {
	p := events.NewLogPublisher(zap.NewNop())
	err := p.Publish(context.Background(), models.NewDeviceEvent(models.DeviceEventConnected, "r1", testDevice()))
	assert.NoError(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := events.Connect(events.Config{URL: "nats://127.0.0.1:1", Timeout: 200 * time.Millisecond}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to NATS")
}

func TestNATSPublisher_Publish(t *testing.T) {
	sub := testutil.NewNATSConn(t)

	msgs := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("test.devices.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	p, err := events.Connect(events.Config{URL: testutil.NATSURL(), SubjectPrefix: "test.devices"}, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	event := models.NewDeviceEvent(models.DeviceEventConnected, "r1", testDevice())
	require.NoError(t, p.Publish(context.Background(), event))

	select {
	case msg := <-msgs:
		assert.Equal(t, "test.devices.connected", msg.Subject)
		assert.NotContains(t, string(msg.Data), "secret")

		var got models.DeviceEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "r1", got.DeviceID)
		assert.Equal(t, "10.0.0.1", got.Host)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
