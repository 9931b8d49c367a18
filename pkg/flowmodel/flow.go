package flowmodel

import "github.com/newtron-network/flowmesh/pkg/ferrors"

// DefaultSchedulerQueueDepth is the default per-device pending-flow bound
// before Enqueue rejects with QueueOverflow (spec §4.3).
const DefaultSchedulerQueueDepth = 64

// Priority orders flows within a device's scheduler queue, high to low.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// ParsePriority parses the wire string form of a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "normal":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	case "critical":
		return PriorityCritical, true
	default:
		return 0, false
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// StepKind tags a flow Step's variant.
type StepKind string

const (
	StepLaunchApp      StepKind = "launch_app"
	StepTap            StepKind = "tap"
	StepSwipe          StepKind = "swipe"
	StepKeyevent       StepKind = "keyevent"
	StepText           StepKind = "text"
	StepGoBack         StepKind = "go_back"
	StepGoHome         StepKind = "go_home"
	StepWait           StepKind = "wait"
	StepCaptureSensors StepKind = "capture_sensors"
	StepExecuteAction  StepKind = "execute_action"
	StepAssertScreen   StepKind = "assert_screen"
	StepAssertElement  StepKind = "assert_element"
)

// Step is one instruction within a Flow. Only the fields relevant to Kind
// are populated.
type Step struct {
	Kind StepKind `json:"kind"`

	// launch_app
	Package string `json:"package,omitempty"`

	// tap
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// swipe
	X2         int `json:"x2,omitempty"`
	Y2         int `json:"y2,omitempty"`
	DurationMS int `json:"duration_ms,omitempty"`

	// keyevent
	Keycode int `json:"keycode,omitempty"`

	// text
	Text string `json:"text,omitempty"`

	// wait
	WaitSeconds float64 `json:"wait_seconds,omitempty"`

	// capture_sensors
	SensorIDs []string `json:"sensor_ids,omitempty"`

	// execute_action
	ActionID string `json:"action_id,omitempty"`

	// assert_screen / assert_element
	ExpectedActivity string      `json:"expected_activity,omitempty"`
	ExpectedElement  *ElementRef `json:"expected_element,omitempty"`

	// StopOnError overrides the flow-level default for this step.
	StopOnError *bool `json:"stop_on_error,omitempty"`
}

// maxWaitSeconds is the process cap on a wait step's duration.
const maxWaitSeconds = 300

// Flow is a persisted, ordered program of steps targeting one device.
type Flow struct {
	FlowID                string   `json:"flow_id"`
	StableDeviceID        string   `json:"stable_device_id"`
	Name                  string   `json:"name"`
	Enabled               bool     `json:"enabled"`
	Priority              Priority `json:"priority"`
	UpdateIntervalSeconds int      `json:"update_interval_seconds"`
	Steps                 []Step   `json:"steps"`
	StopOnError           bool     `json:"stop_on_error"`
}

// Validate enforces the interval floor from spec §8 ("4 rejects as
// Validation") and basic step shape.
func (f *Flow) Validate() error {
	b := &ferrors.ValidationBuilder{}
	b.Add(f.FlowID != "", "flow_id is required")
	b.Add(f.StableDeviceID != "", "stable_device_id is required")
	b.Add(len(f.Steps) > 0, "flow must have at least one step")
	b.Addf(f.UpdateIntervalSeconds >= 5 && f.UpdateIntervalSeconds <= 3600,
		"update_interval_seconds must be in [5, 3600], got %d", f.UpdateIntervalSeconds)
	for i, s := range f.Steps {
		if s.Kind == StepWait {
			b.Addf(s.WaitSeconds >= 0 && s.WaitSeconds <= maxWaitSeconds,
				"step %d: wait_seconds must be in [0, %d]", i, maxWaitSeconds)
		}
		if s.Kind == StepCaptureSensors {
			b.Addf(len(s.SensorIDs) > 0, "step %d: capture_sensors requires sensor_ids", i)
		}
		if s.Kind == StepExecuteAction {
			b.Addf(s.ActionID != "", "step %d: execute_action requires action_id", i)
		}
	}
	return b.Build()
}
