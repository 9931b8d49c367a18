package flowmodel

import "github.com/newtron-network/flowmesh/pkg/ferrors"

// NavStepKind tags one atomic instruction within a NavigationBlock's
// navigation_sequence.
type NavStepKind string

const (
	NavTap      NavStepKind = "tap"
	NavSwipe    NavStepKind = "swipe"
	NavWait     NavStepKind = "wait"
	NavKeyevent NavStepKind = "keyevent"
	NavText     NavStepKind = "text"
)

// NavStep is one atomic instruction in a navigation_sequence.
type NavStep struct {
	Kind       NavStepKind `json:"kind"`
	X          int         `json:"x,omitempty"`
	Y          int         `json:"y,omitempty"`
	X2         int         `json:"x2,omitempty"`
	Y2         int         `json:"y2,omitempty"`
	DurationMS int         `json:"duration_ms,omitempty"`
	Keycode    int         `json:"keycode,omitempty"`
	Text       string      `json:"text,omitempty"`
	WaitMS     int         `json:"wait_ms,omitempty"`
}

// NavigationBlock is the shared "how do I get to the right screen before
// doing this" descriptor attached to a Sensor, Action, or flow Step.
type NavigationBlock struct {
	TargetApp               string      `json:"target_app,omitempty"`
	PrerequisiteActionIDs   []string    `json:"prerequisite_action_ids,omitempty"`
	NavigationSequence      []NavStep   `json:"navigation_sequence,omitempty"`
	ValidationElement       *ElementRef `json:"validation_element,omitempty"`
	ReturnHomeAfter         bool        `json:"return_home_after"`
	MaxNavigationAttempts   int         `json:"max_navigation_attempts"`
	NavigationTimeoutSeconds int        `json:"navigation_timeout_seconds"`
}

// Validate enforces the bounded ranges from spec §3.
func (n *NavigationBlock) Validate() error {
	b := &ferrors.ValidationBuilder{}
	b.Addf(n.MaxNavigationAttempts >= 1 && n.MaxNavigationAttempts <= 10,
		"max_navigation_attempts must be in [1,10], got %d", n.MaxNavigationAttempts)
	b.Addf(n.NavigationTimeoutSeconds >= 1 && n.NavigationTimeoutSeconds <= 60,
		"navigation_timeout_seconds must be in [1,60], got %d", n.NavigationTimeoutSeconds)
	return b.Build()
}

// AttemptSpacing returns how long to wait between navigation attempts:
// the configured timeout spread evenly across the configured attempts.
func (n *NavigationBlock) AttemptSpacing() float64 {
	if n.MaxNavigationAttempts == 0 {
		return float64(n.NavigationTimeoutSeconds)
	}
	return float64(n.NavigationTimeoutSeconds) / float64(n.MaxNavigationAttempts)
}
