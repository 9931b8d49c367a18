package flowmodel

import (
	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

// ActionKind tags an Action's variant.
type ActionKind string

const (
	ActionTap       ActionKind = "tap"
	ActionSwipe     ActionKind = "swipe"
	ActionText      ActionKind = "text"
	ActionKeyevent  ActionKind = "keyevent"
	ActionLaunchApp ActionKind = "launch_app"
	ActionDelay     ActionKind = "delay"
	ActionMacro     ActionKind = "macro"
)

// maxMacroChildren bounds Action.Children per spec §3 and §8.
const maxMacroChildren = 50

// ActionResult records the outcome of the most recent execution of an Action.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Action is a persisted, parameterized UI operation bound to one device.
type Action struct {
	ActionID       string           `json:"action_id"`
	StableDeviceID string           `json:"stable_device_id"`
	Kind           ActionKind       `json:"kind"`
	Parameters     ActionParameters `json:"parameters"`
	Enabled        bool             `json:"enabled"`
	Navigation     *NavigationBlock `json:"navigation,omitempty"`
	ExecutionCount int              `json:"execution_count"`
	LastResult     *ActionResult    `json:"last_result,omitempty"`

	// Children and StopOnError apply only to Kind == ActionMacro.
	Children    []Action `json:"children,omitempty"`
	StopOnError bool     `json:"stop_on_error,omitempty"`
}

// ActionParameters holds the kind-dependent fields for a non-macro action.
// Only the fields relevant to Kind are populated; Validate enforces this.
type ActionParameters struct {
	X          int    `json:"x,omitempty"`
	Y          int    `json:"y,omitempty"`
	X2         int    `json:"x2,omitempty"`
	Y2         int    `json:"y2,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	Text       string `json:"text,omitempty"`
	Keycode    int    `json:"keycode,omitempty"`
	Package    string `json:"package,omitempty"`
	DelayMS    int    `json:"delay_ms,omitempty"`
}

// Validate enforces per-kind parameter presence and the macro bound.
func (a *Action) Validate() error {
	b := &ferrors.ValidationBuilder{}
	b.Add(a.ActionID != "", "action_id is required")
	b.Add(a.StableDeviceID != "", "stable_device_id is required")

	switch a.Kind {
	case ActionTap:
		b.Add(a.Parameters.X != 0 || a.Parameters.Y != 0, "tap requires x, y")
	case ActionSwipe:
		b.Add(a.Parameters.DurationMS > 0, "swipe requires duration_ms > 0")
	case ActionText:
		b.Add(a.Parameters.Text != "", "text action requires text")
	case ActionKeyevent:
		b.Add(a.Parameters.Keycode != 0, "keyevent requires keycode")
	case ActionLaunchApp:
		b.Add(a.Parameters.Package != "", "launch_app requires package")
	case ActionDelay:
		b.Add(a.Parameters.DelayMS > 0, "delay requires delay_ms > 0")
	case ActionMacro:
		b.Addf(len(a.Children) <= maxMacroChildren,
			"macro has %d children, exceeds bound of %d", len(a.Children), maxMacroChildren)
		for i := range a.Children {
			if err := a.Children[i].Validate(); err != nil {
				b.Addf(false, "child %d: %v", i, err)
			}
		}
	default:
		b.Addf(false, "unknown action kind %q", a.Kind)
	}
	return b.Build()
}
