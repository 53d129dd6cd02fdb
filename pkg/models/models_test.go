package models_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Device config tests
func TestDeviceConfig_WithDefaults(t *testing.T) {
	cfg := models.DeviceConfig{
		Host:       "10.0.0.1",
		DeviceType: "cisco_ios",
		Username:   "admin",
		Password:   "pw",
	}.WithDefaults()

	assert.Equal(t, models.DefaultPort, cfg.Port)
	assert.Equal(t, models.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, models.DefaultSessionTimeout, cfg.SessionTimeout)

	custom := models.DeviceConfig{Port: 2222, Timeout: 5, SessionTimeout: 10}.WithDefaults()
	assert.Equal(t, 2222, custom.Port)
	assert.Equal(t, 5, custom.Timeout)
	assert.Equal(t, 10, custom.SessionTimeout)
}

func TestDeviceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.DeviceConfig
		wantErr bool
		field   string
	}{
		{
			name: "valid",
			cfg:  models.DeviceConfig{Host: "r1", DeviceType: "cisco_ios", Username: "admin"},
		},
		{
			name:    "missing host",
			cfg:     models.DeviceConfig{DeviceType: "cisco_ios", Username: "admin"},
			wantErr: true,
			field:   "host",
		},
		{
			name:    "missing device type",
			cfg:     models.DeviceConfig{Host: "r1", Username: "admin"},
			wantErr: true,
			field:   "device_type",
		},
		{
			name:    "missing username",
			cfg:     models.DeviceConfig{Host: "r1", DeviceType: "linux"},
			wantErr: true,
			field:   "username",
		},
		{
			name:    "port out of range",
			cfg:     models.DeviceConfig{Host: "r1", DeviceType: "linux", Username: "u", Port: 70000},
			wantErr: true,
			field:   "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)

			var ve *models.ValidationErrors
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
}

func TestDeviceConfig_AddressAndCredentials(t *testing.T) {
	cfg := models.DeviceConfig{Host: "10.0.0.1", Password: "pw", Secret: "en"}
	assert.Equal(t, "10.0.0.1:22", cfg.Address())
	assert.Equal(t, []string{"pw", "en"}, cfg.Credentials())

	cfg.Port = 830
	cfg.Secret = ""
	assert.Equal(t, "10.0.0.1:830", cfg.Address())
	assert.Equal(t, []string{"pw"}, cfg.Credentials())
}

func TestDeviceConfig_JSONOmitsSecrets(t *testing.T) {
	cfg := models.DeviceConfig{Host: "r1", DeviceType: "cisco_ios", Username: "admin", Password: "hunter2", Secret: "enable9"}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.NotContains(t, string(data), "enable9")
	assert.Contains(t, string(data), `"host":"r1"`)
}

func TestSupportedDeviceTypes(t *testing.T) {
	types := models.SupportedDeviceTypes()
	assert.Contains(t, types, models.DeviceTypeCiscoIOS)
	assert.Contains(t, types, models.DeviceTypeJuniperJunos)
	assert.Len(t, types, 12)
}

// Error classification tests
func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FailureKind
	}{
		{"nil", nil, models.FailureNone},
		{"auth", models.NewAuthError("open", errors.New("denied")), models.FailureAuthentication},
		{"timeout", models.NewTimeoutError("open", errors.New("i/o timeout")), models.FailureTimeout},
		{"transport", models.NewTransportError("open", errors.New("refused")), models.FailureTransport},
		{"wrapped auth", fmt.Errorf("connect: %w", models.NewAuthError("", errors.New("x"))), models.FailureAuthentication},
		{"sentinel timeout", fmt.Errorf("read: %w", models.ErrTimeout), models.FailureTimeout},
		{"not connected", models.ErrNotConnected, models.FailureNotConnected},
		{"validation", models.NewValidationErrors(), models.FailureInvalidArgument},
		{"unknown", errors.New("boom"), models.FailureTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.KindOf(tt.err))
		})
	}
}

func TestTransportError_Is(t *testing.T) {
	err := models.NewAuthError("open", errors.New("permission denied"))

	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.NotErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, "open: permission denied", err.Error())
}

func TestAPIError(t *testing.T) {
	err := models.NewDeviceNotFoundError("r1").WithRequestID("req-1")

	assert.Equal(t, models.CodeDeviceNotFound, err.Code)
	assert.Equal(t, "r1", err.Details["device_id"])
	assert.Equal(t, "req-1", err.RequestID)
	assert.Contains(t, err.Error(), "DEVICE_NOT_FOUND")
}

// Result tests
func TestResult(t *testing.T) {
	ok := models.Ok("done")
	assert.True(t, ok.Success())
	assert.Equal(t, "done", ok.String())

	fail := models.Fail(models.FailureTimeout, "slow")
	assert.False(t, fail.Success())
	assert.Equal(t, models.FailureTimeout, fail.Kind)

	// A failure must never be reported as success
	coerced := models.Fail(models.FailureNone, "odd")
	assert.False(t, coerced.Success())
	assert.Equal(t, models.FailureTransport, coerced.Kind)

	data, err := json.Marshal(fail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"kind":"timeout","message":"slow"}`, string(data))
}

// Audit event tests
func TestAuditEvent_ComputeAndVerifyHash(t *testing.T) {
	sessionID := uuid.New()

	event := models.NewAuditEventBuilder(models.AuditEventDeviceCommand).
		WithDevice("r1", "10.0.0.1", "cisco_ios").
		WithSession(sessionID).
		WithAction("show version").
		WithOutputSize(512).
		Build(1, nil)

	assert.NotEmpty(t, event.EventHash)
	assert.True(t, event.Verify())
	assert.Equal(t, &sessionID, event.SessionID)

	event.Action = "reload"
	assert.False(t, event.Verify())
}

func TestAuditEvent_VerifyChain(t *testing.T) {
	event1 := models.NewAuditEventBuilder(models.AuditEventDeviceConnect).
		WithDevice("r1", "10.0.0.1", "cisco_ios").
		Build(1, nil)

	event2 := models.NewAuditEventBuilder(models.AuditEventDeviceConfigSet).
		WithDevice("r1", "10.0.0.1", "cisco_ios").
		WithCommands([]string{"interface Gi0/1", "shutdown"}).
		Build(2, event1.EventHash)

	assert.True(t, event1.VerifyChain(nil))
	assert.True(t, event2.VerifyChain(event1))

	event3 := models.NewAuditEventBuilder(models.AuditEventDeviceDisconnect).
		WithDevice("r1", "10.0.0.1", "cisco_ios").
		Build(3, []byte("wrong-hash"))
	assert.False(t, event3.VerifyChain(event2))
}

func TestAuditEventBuilder_WithFailure(t *testing.T) {
	event := models.NewAuditEventBuilder(models.AuditEventDeviceConnectFailed).
		WithDevice("r1", "10.0.0.1", "cisco_ios").
		WithFailure(models.FailureAuthentication, "Authentication failed for device r1").
		Event()

	assert.Equal(t, models.AuditResultFailure, event.Result)
	assert.Equal(t, models.AuditSeverityWarning, event.Severity)
	assert.Equal(t, models.FailureAuthentication, event.Details.ErrorKind)
	assert.Empty(t, event.EventHash)
}
