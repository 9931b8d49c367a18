// Package auth provides permission-based access control over flow, action,
// sensor, and device operations.
package auth

// Permission names one controllable operation.
type Permission string

const (
	PermFlowRun     Permission = "flow.run"
	PermFlowEdit    Permission = "flow.edit"
	PermFlowView    Permission = "flow.view"
	PermActionEdit  Permission = "action.edit"
	PermActionView  Permission = "action.view"
	PermSensorEdit  Permission = "sensor.edit"
	PermSensorView  Permission = "sensor.view"
	PermDeviceLock  Permission = "device.lock"
	PermDevicePair  Permission = "device.pair"
	PermQueuePurge  Permission = "queue.purge"
	PermNavTeach    Permission = "navigation.teach"
	PermAuditView   Permission = "audit.view"

	PermAll Permission = "all" // superuser - allows everything
)

// PermissionCategory groups related permissions for display purposes.
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines the categories httpapi's whoami handler walks
// to build a user's resolved permission list, surfaced by flowctl's
// `auth whoami`.
var StandardCategories = []PermissionCategory{
	{Name: "flow", Description: "Flow authoring and execution", Permissions: []Permission{PermFlowRun, PermFlowEdit, PermFlowView}},
	{Name: "action", Description: "Action authoring", Permissions: []Permission{PermActionEdit, PermActionView}},
	{Name: "sensor", Description: "Sensor authoring", Permissions: []Permission{PermSensorEdit, PermSensorView}},
	{Name: "device", Description: "Device lock and pairing", Permissions: []Permission{PermDeviceLock, PermDevicePair}},
	{Name: "queue", Description: "Command queue administration", Permissions: []Permission{PermQueuePurge}},
	{Name: "navigation", Description: "Navigation graph teaching", Permissions: []Permission{PermNavTeach}},
	{Name: "audit", Description: "Audit log access", Permissions: []Permission{PermAuditView}},
}

// Context carries the resource a permission check applies to.
type Context struct {
	StableDeviceID string
	FlowID         string
	Resource       string
}

// NewContext creates an empty permission context.
func NewContext() *Context { return &Context{} }

// WithDevice sets the device context.
func (c *Context) WithDevice(stableID string) *Context {
	c.StableDeviceID = stableID
	return c
}

// WithFlow sets the flow context.
func (c *Context) WithFlow(flowID string) *Context {
	c.FlowID = flowID
	return c
}

// WithResource sets a generic resource context.
func (c *Context) WithResource(resource string) *Context {
	c.Resource = resource
	return c
}

// IsReadOnly reports whether a permission is a view-only operation.
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermFlowView, PermActionView, PermSensorView, PermAuditView:
		return true
	}
	return false
}

// RequiresLock reports whether exercising this permission requires holding
// the target device's exclusive lock (spec §4.6).
func (p Permission) RequiresLock() bool {
	switch p {
	case PermFlowRun, PermDevicePair, PermNavTeach:
		return true
	}
	return false
}
