package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/registry"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Connect records cfg for id and opens a new session. A session that is
// already live for id is closed first. Failures never leave a session behind.
func (m *Manager) Connect(ctx context.Context, id string, cfg models.DeviceConfig) models.Result {
	start := time.Now()
	cfg = cfg.WithDefaults()

	if strings.TrimSpace(id) == "" {
		return m.fail(models.FailureInvalidArgument, cfg, "Device identifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return m.fail(models.FailureInvalidArgument, cfg, "Invalid configuration for device %s: %v", id, err)
	}

	unlock := m.registry.Lock(id)
	defer unlock()

	old, known := m.registry.Get(id)
	m.registry.Put(id, cfg)

	if known && old.Connected() {
		m.closeReplaced(ctx, id, old)
	}

	result, audit := m.connect(ctx, id, cfg)
	m.finish(ctx, OpConnect, id, cfg, start, result, audit)
	return result
}

func (m *Manager) connect(ctx context.Context, id string, cfg models.DeviceConfig) (models.Result, *models.AuditEventBuilder) {
	opCtx, cancel := deviceContext(ctx, cfg)
	defer cancel()

	m.logger.Info("Connecting to device",
		zap.String("device_id", id),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("device_type", cfg.DeviceType),
	)

	sess, err := m.transport.Open(opCtx, transport.ParamsFromConfig(cfg))
	if err != nil {
		return m.connectFailed(ctx, id, cfg, err)
	}

	prompt, err := sess.FindPrompt(opCtx)
	if err != nil {
		if cerr := sess.Disconnect(); cerr != nil {
			m.logger.Debug("Failed to close session after prompt error",
				zap.String("device_id", id),
				zap.String("error", scrub(cerr.Error(), cfg.Credentials()...)),
			)
		}
		return m.connectFailed(ctx, id, cfg, fmt.Errorf("prompt not detected: %w", err))
	}

	sessionID, err := m.registry.SetSession(id, sess)
	if err != nil {
		sess.Disconnect()
		return m.connectFailed(ctx, id, cfg, err)
	}

	m.logger.Info("Connected to device",
		zap.String("device_id", id),
		zap.String("host", cfg.Host),
		zap.String("session_id", sessionID.String()),
		zap.String("prompt", prompt),
	)

	event := models.NewDeviceEvent(models.DeviceEventConnected, id, cfg)
	event.SessionID = sessionID.String()
	m.publish(ctx, event)

	audit := models.NewAuditEventBuilder(models.AuditEventDeviceConnect).
		WithSession(sessionID).
		WithAction(OpConnect).
		WithContext("prompt", prompt)
	return models.Ok(fmt.Sprintf("Successfully connected to device %s (%s). Device prompt: %s", id, cfg.Host, prompt)), audit
}

func (m *Manager) connectFailed(ctx context.Context, id string, cfg models.DeviceConfig, err error) (models.Result, *models.AuditEventBuilder) {
	kind := models.KindOf(err)
	result := m.fail(kind, cfg, "Failed to connect to device %s: %s: %v", id, kind.Describe(), err)

	event := models.NewDeviceEvent(models.DeviceEventConnectFailed, id, cfg)
	event.Kind = kind
	event.Message = result.Message
	m.publish(ctx, event)

	audit := models.NewAuditEventBuilder(models.AuditEventDeviceConnectFailed).
		WithAction(OpConnect)
	return result, audit
}

// closeReplaced closes the live session of id before a reconnect replaces it
func (m *Manager) closeReplaced(ctx context.Context, id string, old registry.Entry) {
	err := old.Session.Disconnect()
	m.registry.RemoveSession(id)

	fields := []zap.Field{
		zap.String("device_id", id),
		zap.String("session_id", old.SessionID.String()),
	}
	if err != nil {
		fields = append(fields, zap.String("error", scrub(err.Error(), old.Config.Credentials()...)))
	}
	m.logger.Info("Closed previous session before reconnect", fields...)

	event := models.NewDeviceEvent(models.DeviceEventDisconnected, id, old.Config)
	event.SessionID = old.SessionID.String()
	event.Message = "replaced by reconnect"
	m.publish(ctx, event)
}

// Disconnect closes the session of id. The session is removed from the
// registry even when closing it reports an error.
func (m *Manager) Disconnect(ctx context.Context, id string) models.Result {
	start := time.Now()

	unlock := m.registry.Lock(id)
	defer unlock()

	e, ok := m.registry.Get(id)
	if !ok || !e.Connected() {
		return models.Ok(fmt.Sprintf("Device %s is not connected", id))
	}

	err := e.Session.Disconnect()
	m.registry.RemoveSession(id)

	event := models.NewDeviceEvent(models.DeviceEventDisconnected, id, e.Config)
	event.SessionID = e.SessionID.String()
	m.publish(ctx, event)

	var result models.Result
	if err != nil {
		result = m.fail(models.FailureTransport, e.Config, "Error disconnecting from device %s: %v", id, err)
	} else {
		result = models.Ok(fmt.Sprintf("Successfully disconnected from device %s", id))
		m.logger.Info("Disconnected from device",
			zap.String("device_id", id),
			zap.String("session_id", e.SessionID.String()),
		)
	}

	audit := models.NewAuditEventBuilder(models.AuditEventDeviceDisconnect).
		WithSession(e.SessionID).
		WithAction(OpDisconnect)
	m.finish(ctx, OpDisconnect, id, e.Config, start, result, audit)
	return result
}

// connected returns the registry entry for id or the "connect first" failure
func (m *Manager) connected(id string) (registry.Entry, *models.Result) {
	e, ok := m.registry.Get(id)
	if !ok || !e.Connected() {
		r := models.Fail(models.FailureNotConnected, fmt.Sprintf("Device %s is not connected. Please connect first.", id))
		return registry.Entry{}, &r
	}
	return e, nil
}

// SendCommand runs one command on a connected device
func (m *Manager) SendCommand(ctx context.Context, id, command string, opts transport.CommandOptions) models.Result {
	start := time.Now()

	unlock := m.registry.Lock(id)
	defer unlock()

	e, failure := m.connected(id)
	if failure != nil {
		return *failure
	}

	var result models.Result
	audit := models.NewAuditEventBuilder(models.AuditEventDeviceCommand).
		WithSession(e.SessionID).
		WithAction(command)

	if strings.TrimSpace(command) == "" {
		result = m.fail(models.FailureInvalidArgument, e.Config, "No command supplied for device %s", id)
		m.finish(ctx, OpSendCommand, id, e.Config, start, result, audit)
		return result
	}

	opCtx, cancel := deviceContext(ctx, e.Config)
	defer cancel()

	out, err := e.Session.SendCommand(opCtx, command, opts)
	if err != nil {
		result = m.fail(models.KindOf(err), e.Config, "Error executing command on device %s: %v", id, err)
	} else {
		rendered, rerr := renderOutput(out)
		if rerr != nil {
			result = m.fail(models.FailureTransport, e.Config, "Error formatting output from device %s: %v", id, rerr)
		} else {
			audit.WithOutputSize(len(rendered)).WithContext("structured", out.Structured())
			result = models.Ok(fmt.Sprintf("Command: %s\n\nOutput:\n%s", command, rendered))
		}
	}

	m.finish(ctx, OpSendCommand, id, e.Config, start, result, audit)
	return result
}

// renderOutput formats structured records as indented JSON and raw text verbatim
func renderOutput(out transport.Output) (string, error) {
	if !out.Structured() {
		return out.Text, nil
	}
	data, err := json.MarshalIndent(out.Records, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SendConfigSet applies commands in order inside configuration mode
func (m *Manager) SendConfigSet(ctx context.Context, id string, commands []string, exitConfigMode bool) models.Result {
	start := time.Now()

	unlock := m.registry.Lock(id)
	defer unlock()

	e, failure := m.connected(id)
	if failure != nil {
		return *failure
	}

	var result models.Result
	audit := models.NewAuditEventBuilder(models.AuditEventDeviceConfigSet).
		WithSession(e.SessionID).
		WithAction(OpSendConfigSet).
		WithCommands(commands)

	if len(commands) == 0 {
		result = m.fail(models.FailureInvalidArgument, e.Config, "No configuration commands supplied for device %s", id)
		m.finish(ctx, OpSendConfigSet, id, e.Config, start, result, audit)
		return result
	}

	opCtx, cancel := deviceContext(ctx, e.Config)
	defer cancel()

	out, err := e.Session.SendConfigSet(opCtx, commands, exitConfigMode)
	if err != nil {
		result = m.fail(models.KindOf(err), e.Config, "Error executing config commands on device %s: %v", id, err)
	} else {
		audit.WithOutputSize(len(out))
		result = models.Ok(fmt.Sprintf("Configuration commands executed:\n%s\n\nOutput:\n%s", strings.Join(commands, "\n"), out))

		event := models.NewDeviceEvent(models.DeviceEventConfigApplied, id, e.Config)
		event.SessionID = e.SessionID.String()
		event.Commands = len(commands)
		m.publish(ctx, event)
	}

	m.finish(ctx, OpSendConfigSet, id, e.Config, start, result, audit)
	return result
}

// GetDeviceInfo re-queries the prompt and reports a JSON snapshot of the device
func (m *Manager) GetDeviceInfo(ctx context.Context, id string) models.Result {
	start := time.Now()

	unlock := m.registry.Lock(id)
	defer unlock()

	e, failure := m.connected(id)
	if failure != nil {
		return *failure
	}

	opCtx, cancel := deviceContext(ctx, e.Config)
	defer cancel()

	var result models.Result
	prompt, err := e.Session.FindPrompt(opCtx)
	if err != nil {
		result = m.fail(models.KindOf(err), e.Config, "Error getting device info for %s: %v", id, err)
	} else {
		info := models.DeviceInfo{
			DeviceID:       id,
			Host:           e.Config.Host,
			DeviceType:     e.Config.DeviceType,
			Port:           e.Config.Port,
			Prompt:         prompt,
			Connected:      true,
			SessionTimeout: e.Config.SessionTimeout,
			SessionID:      e.SessionID.String(),
		}
		data, _ := json.MarshalIndent(info, "", "  ")
		result = models.Ok(string(data))
	}

	m.finish(ctx, OpGetDeviceInfo, id, e.Config, start, result, nil)
	return result
}

// ListConnectedDevices re-queries the prompt of every connected device.
// Devices are queried in parallel, each under its own lock.
func (m *Manager) ListConnectedDevices(ctx context.Context) models.Result {
	start := time.Now()
	snapshot := m.registry.ListConnected()

	items := make([]*models.ConnectedDevice, len(snapshot))
	var wg sync.WaitGroup
	for i, entry := range snapshot {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			items[i] = m.describeConnected(ctx, id)
		}(i, entry.ID)
	}
	wg.Wait()

	devices := make([]models.ConnectedDevice, 0, len(items))
	for _, item := range items {
		if item != nil {
			devices = append(devices, *item)
		}
	}

	var result models.Result
	if len(devices) == 0 {
		result = models.Ok("No devices currently connected")
	} else {
		data, _ := json.MarshalIndent(devices, "", "  ")
		result = models.Ok(string(data))
	}

	m.metrics.ObserveOperation(OpListConnectedDevices, result.Kind, time.Since(start))
	return result
}

// describeConnected returns nil when id was disconnected after the snapshot
func (m *Manager) describeConnected(ctx context.Context, id string) *models.ConnectedDevice {
	unlock := m.registry.Lock(id)
	defer unlock()

	e, ok := m.registry.Get(id)
	if !ok || !e.Connected() {
		return nil
	}

	item := &models.ConnectedDevice{
		DeviceID:   id,
		Host:       e.Config.Host,
		DeviceType: e.Config.DeviceType,
	}

	opCtx, cancel := deviceContext(ctx, e.Config)
	defer cancel()

	prompt, err := e.Session.FindPrompt(opCtx)
	if err != nil {
		item.Error = scrub(fmt.Sprintf("%s: %v", models.KindOf(err).Describe(), err), e.Config.Credentials()...)
		m.logger.Warn("Prompt query failed while listing devices",
			zap.String("device_id", id),
			zap.String("error", item.Error),
		)
		return item
	}
	item.Prompt = prompt
	return item
}
