package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceEventType names a device lifecycle transition
type DeviceEventType string

const (
	DeviceEventConnected     DeviceEventType = "connected"
	DeviceEventDisconnected  DeviceEventType = "disconnected"
	DeviceEventConnectFailed DeviceEventType = "connect_failed"
	DeviceEventConfigApplied DeviceEventType = "config_applied"
)

// DeviceEvent is published whenever a device changes state
type DeviceEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       DeviceEventType `json:"type"`
	DeviceID   string          `json:"device_id"`
	Host       string          `json:"host"`
	DeviceType string          `json:"device_type"`
	SessionID  string          `json:"session_id,omitempty"`
	Kind       FailureKind     `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	Commands   int             `json:"commands,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewDeviceEvent creates an event for the device described by cfg
func NewDeviceEvent(eventType DeviceEventType, deviceID string, cfg DeviceConfig) *DeviceEvent {
	return &DeviceEvent{
		ID:         uuid.New(),
		Type:       eventType,
		DeviceID:   deviceID,
		Host:       cfg.Host,
		DeviceType: cfg.DeviceType,
		Timestamp:  time.Now().UTC(),
	}
}
