package flowmodel

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Landmark is a stable, salient UI element signature used to distinguish
// screens that share an activity.
type Landmark struct {
	ResourceID string `json:"resource_id"`
	Text       string `json:"text"`
	Class      string `json:"class"`
}

func (l Landmark) key() string {
	return l.ResourceID + "\x00" + l.Text + "\x00" + l.Class
}

// ScreenID computes screen_id = hash(activity + landmarks), the landmark set
// sorted so that order of observation never affects identity.
func ScreenID(activity string, landmarks []Landmark) string {
	sorted := make([]string, len(landmarks))
	for i, l := range landmarks {
		sorted[i] = l.key()
	}
	sort.Strings(sorted)
	h := sha1.Sum([]byte(activity + "\x01" + strings.Join(sorted, "\x02")))
	return hex.EncodeToString(h[:])
}

// Screen is a node in a package's navigation graph: an activity paired with
// the landmark set observed on it.
type Screen struct {
	ScreenID    string     `json:"screen_id"`
	Package     string     `json:"package"`
	Activity    string     `json:"activity"`
	DisplayName string     `json:"display_name"`
	Landmarks   []Landmark `json:"landmarks"`
	VisitCount  int        `json:"visit_count"`
	IsHome      bool       `json:"is_home"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
}

// NewScreen builds a Screen with its id derived from activity and landmarks.
func NewScreen(pkg, activity string, landmarks []Landmark, now time.Time) *Screen {
	return &Screen{
		ScreenID:  ScreenID(activity, landmarks),
		Package:   pkg,
		Activity:  activity,
		Landmarks: landmarks,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// ActionDescriptor is the serialized action that triggered a Transition.
type ActionDescriptor struct {
	Kind       ActionKind       `json:"kind"`
	Parameters ActionParameters `json:"parameters"`
}

// signature is a stable string used to hash a Transition's identity.
func (a ActionDescriptor) signature() string {
	p := a.Parameters
	return string(a.Kind) + "|" +
		itoa(p.X) + "," + itoa(p.Y) + "," + itoa(p.X2) + "," + itoa(p.Y2) + "," +
		itoa(p.DurationMS) + "," + p.Text + "," + itoa(p.Keycode) + "," + p.Package
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// LearnedFrom tags how a Transition was discovered.
type LearnedFrom string

const (
	LearnedRecording LearnedFrom = "recording"
	LearnedMining    LearnedFrom = "mining"
	LearnedTeaching  LearnedFrom = "teaching"
)

// TransitionID computes transition_id = hash(source, target, action_signature).
func TransitionID(sourceID, targetID string, action ActionDescriptor) string {
	h := sha1.Sum([]byte(sourceID + "\x00" + targetID + "\x00" + action.signature()))
	return hex.EncodeToString(h[:])
}

// Transition is a directed, weighted edge in a package's navigation graph.
type Transition struct {
	TransitionID     string            `json:"transition_id"`
	SourceID         string            `json:"source_id"`
	TargetID         string            `json:"target_id"`
	Action           ActionDescriptor  `json:"action"`
	UsageCount       int               `json:"usage_count"`
	SuccessRate      float64           `json:"success_rate"`
	AvgTransitionMS  float64           `json:"avg_transition_time_ms"`
	LastUsed         time.Time         `json:"last_used"`
	LastSuccess      time.Time         `json:"last_success"`
	LearnedFrom      LearnedFrom       `json:"learned_from"`
}

// emaAlpha is the fixed EMA smoothing factor per the §9 Open Question
// decision: 0.2, not the 0.1 hinted at elsewhere in the source.
const emaAlpha = 0.2

// RecordUse updates usage_count, last_used, and the EMA-smoothed
// success_rate/avg_transition_time_ms following one execution of the edge.
func (t *Transition) RecordUse(success bool, durationMS float64, now time.Time) {
	t.UsageCount++
	t.LastUsed = now
	if success {
		t.LastSuccess = now
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if t.UsageCount == 1 {
		t.SuccessRate = outcome
		t.AvgTransitionMS = durationMS
		return
	}
	t.SuccessRate = emaAlpha*outcome + (1-emaAlpha)*t.SuccessRate
	t.AvgTransitionMS = emaAlpha*durationMS + (1-emaAlpha)*t.AvgTransitionMS
	if t.SuccessRate < 0 {
		t.SuccessRate = 0
	}
	if t.SuccessRate > 1 {
		t.SuccessRate = 1
	}
}

// Cost computes the Dijkstra edge weight from spec §4.7.
func (t *Transition) Cost() float64 {
	reliability := 2.0 - t.SuccessRate
	speed := clamp(0.5, 0.5+t.AvgTransitionMS/2000, 1.5)
	proven := 1.0 / (1.0 + float64(t.UsageCount)*0.1)
	return reliability * speed * proven
}

func clamp(lo, v, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NavigationGraph is the per-package screen/transition graph.
type NavigationGraph struct {
	Package       string                 `json:"package"`
	Screens       map[string]*Screen     `json:"screens"`
	Transitions   []*Transition          `json:"transitions"`
	HomeScreenID  string                 `json:"home_screen_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewNavigationGraph creates an empty graph for a package.
func NewNavigationGraph(pkg string, now time.Time) *NavigationGraph {
	return &NavigationGraph{
		Package:     pkg,
		Screens:     make(map[string]*Screen),
		Transitions: nil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NavigationPath is the output of the pathfinder.
type NavigationPath struct {
	Transitions      []*Transition `json:"transitions"`
	TotalCost        float64       `json:"total_cost"`
	EstimatedTimeMS  float64       `json:"estimated_time_ms"`
}
