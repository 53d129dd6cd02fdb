// Package session implements the device session operations on top of the
// registry and a device transport.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/metrics"
	"github.com/ravipendurty/netmiko-mcp-server/internal/registry"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Operation names used for logging, metrics and audit
const (
	OpConnect              = "connect"
	OpDisconnect           = "disconnect"
	OpSendCommand          = "send_command"
	OpSendConfigSet        = "send_config_set"
	OpGetDeviceInfo        = "get_device_info"
	OpListConnectedDevices = "list_connected_devices"
)

// Recorder stores an audit trail of device operations
type Recorder interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

// Publisher announces device lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event *models.DeviceEvent) error
}

// Manager runs the device operations. Every operation against one device
// identifier holds that identifier's registry lock for its whole duration.
type Manager struct {
	registry  *registry.Registry
	transport transport.Transport
	recorder  Recorder
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewManager creates a new session manager
func NewManager(reg *registry.Registry, tr transport.Transport, logger *zap.Logger) *Manager {
	if reg == nil {
		reg = registry.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:  reg,
		transport: tr,
		logger:    logger,
	}
}

// SetRecorder sets the audit recorder
func (m *Manager) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

// SetPublisher sets the lifecycle event publisher
func (m *Manager) SetPublisher(publisher Publisher) {
	m.publisher = publisher
}

// SetMetrics sets the metrics collectors
func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Registry returns the device registry
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Preload records device configurations without connecting. Invalid entries
// are skipped and reported in the returned error.
func (m *Manager) Preload(devices map[string]models.DeviceConfig) error {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var invalid []string
	for _, id := range ids {
		cfg := devices[id].WithDefaults()
		if err := cfg.Validate(); err != nil || id == "" {
			m.logger.Warn("Skipping invalid device configuration",
				zap.String("device_id", id),
				zap.Error(err),
			)
			invalid = append(invalid, id)
			continue
		}
		m.registry.Put(id, cfg)
		m.logger.Info("Loaded device configuration",
			zap.String("device_id", id),
			zap.String("host", cfg.Host),
			zap.String("device_type", cfg.DeviceType),
		)
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid device configurations %v: %w", invalid, models.ErrInvalidArgument)
	}
	return nil
}

// ListResources describes every known device, connected or not
func (m *Manager) ListResources() []models.DeviceResource {
	entries := m.registry.ListKnown()
	resources := make([]models.DeviceResource, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, resourceFor(e))
	}
	return resources
}

// ReadResource describes one known device without touching its session
func (m *Manager) ReadResource(id string) (models.DeviceResource, error) {
	e, ok := m.registry.Get(id)
	if !ok {
		return models.DeviceResource{}, fmt.Errorf("device %s: %w", id, models.ErrDeviceNotFound)
	}
	return resourceFor(e), nil
}

// Shutdown disconnects every live session and returns how many were closed
func (m *Manager) Shutdown(ctx context.Context) int {
	closed := 0
	for _, e := range m.registry.ListConnected() {
		if ctx.Err() != nil {
			break
		}
		if r := m.Disconnect(ctx, e.ID); r.Success() {
			closed++
		}
	}
	m.logger.Info("Closed device sessions", zap.Int("count", closed))
	return closed
}

func resourceFor(e registry.Entry) models.DeviceResource {
	return models.DeviceResource{
		DeviceID:   e.ID,
		Host:       e.Config.Host,
		DeviceType: e.Config.DeviceType,
		Port:       e.Config.Port,
		Timeout:    e.Config.Timeout,
		Connected:  e.Connected(),
	}
}

// deviceContext bounds a transport call by the device's own timeout
func deviceContext(ctx context.Context, cfg models.DeviceConfig) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.WithDefaults().Timeout) * time.Second
	return context.WithTimeout(ctx, timeout)
}

// fail builds a failure result. Credentials are removed from error
// arguments, which may echo connection parameters; the fixed wording in
// format is left intact.
func (m *Manager) fail(kind models.FailureKind, cfg models.DeviceConfig, format string, args ...interface{}) models.Result {
	secrets := cfg.Credentials()
	for i, arg := range args {
		if err, ok := arg.(error); ok {
			args[i] = scrub(err.Error(), secrets...)
		}
	}
	return models.Fail(kind, fmt.Sprintf(format, args...))
}

func (m *Manager) finish(ctx context.Context, op, id string, cfg models.DeviceConfig, start time.Time, result models.Result, audit *models.AuditEventBuilder) {
	elapsed := time.Since(start)
	m.metrics.ObserveOperation(op, result.Kind, elapsed)
	m.metrics.SetConnected(m.registry.ConnectedCount())

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("device_id", id),
		zap.String("host", cfg.Host),
		zap.Duration("duration", elapsed),
	}
	if result.Success() {
		m.logger.Debug("Device operation completed", fields...)
	} else {
		fields = append(fields, zap.String("kind", string(result.Kind)), zap.String("error", result.Message))
		m.logger.Warn("Device operation failed", fields...)
	}

	if audit == nil || m.recorder == nil {
		return
	}
	src := SourceFrom(ctx)
	audit.WithDevice(id, cfg.Host, cfg.DeviceType).
		WithDuration(elapsed).
		WithSource(src.Transport, src.RequestID)
	if !result.Success() {
		audit.WithFailure(result.Kind, result.Message)
	}
	// The audit write must outlive a cancelled request
	if err := m.recorder.Record(context.WithoutCancel(ctx), audit.Event()); err != nil {
		m.metrics.IncrementAuditWriteErrors()
		m.logger.Error("Failed to record audit event",
			zap.String("device_id", id),
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}

func (m *Manager) publish(ctx context.Context, event *models.DeviceEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.metrics.IncrementEventPublishErrors()
		m.logger.Warn("Failed to publish device event",
			zap.String("device_id", event.DeviceID),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
	}
}
