package session

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/registry"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport/transporttest"
)

func benchManager(b *testing.B, devices int) *Manager {
	b.Helper()
	m := NewManager(registry.New(), transporttest.New(), zap.NewNop())
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("r%d", i)
		if r := m.Connect(context.Background(), id, deviceConfig(fmt.Sprintf("10.0.0.%d", i+1))); !r.Success() {
			b.Fatalf("connect %s: %s", id, r.Message)
		}
	}
	return m
}

// BenchmarkSendCommand measures one serialized command on a single device
func BenchmarkSendCommand(b *testing.B) {
	m := benchManager(b, 1)
	ctx := context.Background()
	opts := transport.DefaultCommandOptions()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.SendCommand(ctx, "r0", "show version", opts)
	}
}

// BenchmarkSendCommandParallel spreads commands across independent devices
func BenchmarkSendCommandParallel(b *testing.B) {
	const devices = 8
	m := benchManager(b, devices)
	ctx := context.Background()
	opts := transport.DefaultCommandOptions()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.SendCommand(ctx, fmt.Sprintf("r%d", i%devices), "show ip int brief", opts)
			i++
		}
	})
}

// BenchmarkListConnectedDevices queries every device prompt
func BenchmarkListConnectedDevices(b *testing.B) {
	m := benchManager(b, 16)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ListConnectedDevices(ctx)
	}
}
