// Package flowmodel defines the core entities the flow engine operates on:
// devices, sensors, actions, flows, navigation graphs, queued commands, and
// the results produced by executing them. These are tagged sum types and
// plain structs rather than the untagged dynamic maps of the original tool.
package flowmodel

import "time"

// DeviceState is the connectivity state tracked by the connection monitor.
type DeviceState string

const (
	DeviceOnline  DeviceState = "online"
	DeviceOffline DeviceState = "offline"
)

// maxConnectionHistory bounds Device.ConnectionHistory per spec §3.
const maxConnectionHistory = 10

// ConnectionEvent records one observed binding of a stable device to a
// connection id.
type ConnectionEvent struct {
	ConnectionID string    `json:"connection_id"`
	At           time.Time `json:"at"`
}

// Device is the in-memory, non-persisted record of a known device.
type Device struct {
	StableID          string            `json:"stable_id"`
	CurrentConnection string            `json:"current_connection"`
	Model             string            `json:"model"`
	Manufacturer      string            `json:"manufacturer"`
	LastSeen          time.Time         `json:"last_seen"`
	ConnectionHistory []ConnectionEvent `json:"connection_history"`
	State             DeviceState       `json:"state"`
	RetryCount        int               `json:"retry_count"`
	RetryDelaySeconds int               `json:"retry_delay_seconds"`
}

// RecordConnection appends a connection event, keeping only the most recent
// maxConnectionHistory entries.
func (d *Device) RecordConnection(connID string, at time.Time) {
	d.ConnectionHistory = append(d.ConnectionHistory, ConnectionEvent{ConnectionID: connID, At: at})
	if len(d.ConnectionHistory) > maxConnectionHistory {
		d.ConnectionHistory = d.ConnectionHistory[len(d.ConnectionHistory)-maxConnectionHistory:]
	}
}
