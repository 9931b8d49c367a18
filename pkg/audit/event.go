// Package audit provides an append-only audit trail of flow executions and
// device operations.
package audit

import (
	"fmt"
	"time"
)

// Event represents one auditable operation against a device or its flows.
type Event struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	StableID    string        `json:"stable_device_id"`
	Operation   string        `json:"operation"`
	FlowID      string        `json:"flow_id,omitempty"`
	ActionID    string        `json:"action_id,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	ClientIP    string        `json:"client_ip,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeConnect    EventType = "connect"
	EventTypeDisconnect EventType = "disconnect"
	EventTypeLock       EventType = "lock"
	EventTypeUnlock     EventType = "unlock"
	EventTypeFlowRun    EventType = "flow_run"
	EventTypeFlowEdit   EventType = "flow_edit"
	EventTypeQueuePurge EventType = "queue_purge"
	EventTypeNavTeach   EventType = "navigation_teach"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	StableID    string
	User        string
	Operation   string
	FlowID      string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(user, stableID, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		StableID:  stableID,
		Operation: operation,
	}
}

// WithFlow sets the flow id.
func (e *Event) WithFlow(flowID string) *Event {
	e.FlowID = flowID
	return e
}

// WithAction sets the action id.
func (e *Event) WithAction(actionID string) *Event {
	e.ActionID = actionID
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
