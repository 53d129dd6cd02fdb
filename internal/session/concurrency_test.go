package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport/transporttest"
)

func TestManager_SameDeviceOperationsNeverOverlap(t *testing.T) {
	m, fake := newTestManager(t)
	connect(t, m, "r1", "10.0.0.1")
	fake.Delay = 2 * time.Millisecond

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 5 {
			case 0:
				m.Disconnect(ctx, "r1")
			case 1:
				m.Connect(ctx, "r1", deviceConfig("10.0.0.1"))
			case 2:
				m.SendConfigSet(ctx, "r1", []string{"hostname r1"}, true)
			case 3:
				m.GetDeviceInfo(ctx, "r1")
			default:
				m.SendCommand(ctx, "r1", "show clock", transport.DefaultCommandOptions())
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, fake.Overlaps(), "calls on one device must not interleave")
	assert.Zero(t, fake.UseAfterClose(), "no call may run on a closed session")

	// A session in the registry is never one that was already closed
	if s, ok := m.Registry().GetSession("r1"); ok {
		assert.False(t, s.(*transporttest.Session).Closed())
		assert.Equal(t, 1, fake.OpenSessions("10.0.0.1"))
	} else {
		assert.Zero(t, fake.OpenSessions("10.0.0.1"))
	}
}

func TestManager_SendCommandRacingDisconnect(t *testing.T) {
	for round := 0; round < 20; round++ {
		m, fake := newTestManager(t)
		connect(t, m, "r1", "10.0.0.1")
		fake.Delay = time.Millisecond

		ctx := context.Background()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.SendCommand(ctx, "r1", "show version", transport.DefaultCommandOptions())
		}()
		go func() {
			defer wg.Done()
			m.Disconnect(ctx, "r1")
		}()
		wg.Wait()

		require.Zero(t, fake.Overlaps())
		require.Zero(t, fake.UseAfterClose())
		_, ok := m.Registry().GetSession("r1")
		require.False(t, ok)
	}
}

func TestManager_ListRespectsDeviceSerialization(t *testing.T) {
	m, fake := newTestManager(t)
	for i := 1; i <= 3; i++ {
		connect(t, m, fmt.Sprintf("r%d", i), fmt.Sprintf("10.0.0.%d", i))
	}
	fake.Delay = 2 * time.Millisecond

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.ListConnectedDevices(ctx)
		}()
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i%3+1)
			m.SendCommand(ctx, id, "show clock", transport.DefaultCommandOptions())
		}(i)
	}
	wg.Wait()

	assert.Zero(t, fake.Overlaps())
}

func TestManager_DifferentDevicesRunInParallel(t *testing.T) {
	m, fake := newTestManager(t)
	fake.Delay = 100 * time.Millisecond

	const devices = 5
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := m.Connect(context.Background(), fmt.Sprintf("r%d", i), deviceConfig(fmt.Sprintf("10.0.0.%d", i)))
			assert.True(t, r.Success(), r.Message)
		}(i)
	}
	wg.Wait()

	// Each connect costs two delayed calls; run serially that would be 1s
	assert.Less(t, time.Since(start), 700*time.Millisecond)
	assert.Len(t, m.Registry().ListConnected(), devices)
}
