package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventDeviceConnect       AuditEventType = "device.connect"
	AuditEventDeviceConnectFailed AuditEventType = "device.connect_failed"
	AuditEventDeviceDisconnect    AuditEventType = "device.disconnect"
	AuditEventDeviceCommand       AuditEventType = "device.command"
	AuditEventDeviceConfigSet     AuditEventType = "device.config_set"
	AuditEventDeviceInfo          AuditEventType = "device.info"

	AuditEventSystemStartup  AuditEventType = "system.startup"
	AuditEventSystemShutdown AuditEventType = "system.shutdown"
)

// AuditResult represents the result of an audited action
type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditSeverity represents the severity of an audit event
type AuditSeverity string

const (
	AuditSeverityInfo    AuditSeverity = "info"
	AuditSeverityWarning AuditSeverity = "warning"
	AuditSeverityError   AuditSeverity = "error"
)

// AuditEvent is an append-only record of one device operation.
// Events are hash chained: EventHash covers PrevHash and the event body.
type AuditEvent struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Sequence int64     `json:"sequence" db:"sequence"`

	PrevHash  []byte `json:"prev_hash" db:"prev_hash"`
	EventHash []byte `json:"event_hash" db:"event_hash"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	EventType AuditEventType `json:"event_type" db:"event_type"`
	Severity  AuditSeverity  `json:"severity" db:"severity"`

	// Device
	DeviceID   string     `json:"device_id" db:"device_id"`
	Host       string     `json:"host,omitempty" db:"host"`
	DeviceType string     `json:"device_type,omitempty" db:"device_type"`
	SessionID  *uuid.UUID `json:"session_id,omitempty" db:"session_id"`

	// Action is the command text, or a short verb for lifecycle events
	Action string      `json:"action" db:"action"`
	Result AuditResult `json:"result" db:"result"`

	Details AuditDetails `json:"details,omitempty" db:"details"`

	// Source
	Transport string `json:"transport,omitempty" db:"transport"`
	RequestID string `json:"request_id,omitempty" db:"request_id"`
}

// AuditDetails contains detailed information about the event
type AuditDetails struct {
	Commands    []string `json:"commands,omitempty"`
	OutputBytes int      `json:"output_bytes,omitempty"`

	ErrorKind    FailureKind `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`

	Context map[string]interface{} `json:"context,omitempty"`
}

// ComputeHash computes the hash for the audit event
func (ae *AuditEvent) ComputeHash() []byte {
	h := sha256.New()

	if ae.PrevHash != nil {
		h.Write(ae.PrevHash)
	}

	binary.Write(h, binary.BigEndian, ae.Sequence)
	binary.Write(h, binary.BigEndian, ae.Timestamp.UnixNano())

	h.Write([]byte(ae.EventType))
	h.Write([]byte(ae.Severity))

	h.Write([]byte(ae.DeviceID))
	h.Write([]byte(ae.Host))
	h.Write([]byte(ae.DeviceType))
	if ae.SessionID != nil {
		h.Write(ae.SessionID[:])
	}

	h.Write([]byte(ae.Action))
	h.Write([]byte(ae.Result))

	detailsJSON, _ := json.Marshal(ae.Details)
	h.Write(detailsJSON)

	h.Write([]byte(ae.Transport))
	h.Write([]byte(ae.RequestID))

	return h.Sum(nil)
}

// Verify verifies the event hash
func (ae *AuditEvent) Verify() bool {
	return bytes.Equal(ae.ComputeHash(), ae.EventHash)
}

// VerifyChain verifies the chain link to the previous event
func (ae *AuditEvent) VerifyChain(prevEvent *AuditEvent) bool {
	if prevEvent == nil {
		return ae.PrevHash == nil && ae.Sequence == 1
	}
	if ae.Sequence != prevEvent.Sequence+1 {
		return false
	}
	return bytes.Equal(ae.PrevHash, prevEvent.EventHash)
}

// AuditEventBuilder helps build audit events
type AuditEventBuilder struct {
	event *AuditEvent
}

// NewAuditEventBuilder creates a new audit event builder
func NewAuditEventBuilder(eventType AuditEventType) *AuditEventBuilder {
	return &AuditEventBuilder{
		event: &AuditEvent{
			ID:        uuid.New(),
			Timestamp: time.Now().UTC(),
			EventType: eventType,
			Severity:  AuditSeverityInfo,
			Result:    AuditResultSuccess,
			Details:   AuditDetails{},
		},
	}
}

// WithSeverity sets the severity
func (b *AuditEventBuilder) WithSeverity(severity AuditSeverity) *AuditEventBuilder {
	b.event.Severity = severity
	return b
}

// WithDevice sets the device the event concerns
func (b *AuditEventBuilder) WithDevice(deviceID, host, deviceType string) *AuditEventBuilder {
	b.event.DeviceID = deviceID
	b.event.Host = host
	b.event.DeviceType = deviceType
	return b
}

// WithSession sets the session reference
func (b *AuditEventBuilder) WithSession(id uuid.UUID) *AuditEventBuilder {
	if id != uuid.Nil {
		b.event.SessionID = &id
	}
	return b
}

// WithAction sets the action
func (b *AuditEventBuilder) WithAction(action string) *AuditEventBuilder {
	b.event.Action = action
	return b
}

// WithCommands sets the configuration commands
func (b *AuditEventBuilder) WithCommands(commands []string) *AuditEventBuilder {
	b.event.Details.Commands = append([]string(nil), commands...)
	return b
}

// WithOutputSize records how much output the device produced
func (b *AuditEventBuilder) WithOutputSize(n int) *AuditEventBuilder {
	b.event.Details.OutputBytes = n
	return b
}

// WithFailure marks the event failed. The message must already be scrubbed.
func (b *AuditEventBuilder) WithFailure(kind FailureKind, message string) *AuditEventBuilder {
	b.event.Result = AuditResultFailure
	b.event.Severity = AuditSeverityWarning
	b.event.Details.ErrorKind = kind
	b.event.Details.ErrorMessage = message
	return b
}

// WithDuration sets the duration
func (b *AuditEventBuilder) WithDuration(d time.Duration) *AuditEventBuilder {
	b.event.Details.DurationMs = d.Milliseconds()
	return b
}

// WithSource sets the front-end the request arrived on
func (b *AuditEventBuilder) WithSource(transport, requestID string) *AuditEventBuilder {
	b.event.Transport = transport
	b.event.RequestID = requestID
	return b
}

// WithContext adds context information
func (b *AuditEventBuilder) WithContext(key string, value interface{}) *AuditEventBuilder {
	if b.event.Details.Context == nil {
		b.event.Details.Context = make(map[string]interface{})
	}
	b.event.Details.Context[key] = value
	return b
}

// Event returns the event without sealing it
func (b *AuditEventBuilder) Event() *AuditEvent {
	return b.event
}

// Build finalizes and returns the audit event
func (b *AuditEventBuilder) Build(sequence int64, prevHash []byte) *AuditEvent {
	return b.event.Seal(sequence, prevHash)
}

// Seal assigns the chain position and computes the event hash
func (ae *AuditEvent) Seal(sequence int64, prevHash []byte) *AuditEvent {
	ae.Sequence = sequence
	ae.PrevHash = prevHash
	ae.EventHash = ae.ComputeHash()
	return ae
}

// AuditQuery represents a query for audit events
type AuditQuery struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`

	DeviceID   string           `json:"device_id,omitempty"`
	EventTypes []AuditEventType `json:"event_types,omitempty"`
	Result     AuditResult      `json:"result,omitempty"`

	Limit  int   `json:"limit,omitempty"`
	Offset int64 `json:"offset,omitempty"`
}

// AuditChainVerification represents the result of chain verification
type AuditChainVerification struct {
	Valid         bool      `json:"valid"`
	FirstSequence int64     `json:"first_sequence"`
	LastSequence  int64     `json:"last_sequence"`
	EventCount    int       `json:"event_count"`
	BrokenAt      *int64    `json:"broken_at,omitempty"`
	Error         string    `json:"error,omitempty"`
	VerifiedAt    time.Time `json:"verified_at"`
}
