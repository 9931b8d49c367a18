package flowmodel

import (
	"time"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

// SensorType distinguishes a numeric/text reading from an on/off reading.
type SensorType string

const (
	SensorScalar SensorType = "scalar"
	SensorBinary SensorType = "binary"
)

// SourceKind tags a Sensor's Source variant.
type SourceKind string

const (
	SourceElement SourceKind = "element_ref"
	SourceBounds  SourceKind = "bounds_ref"
)

// Source locates the on-screen origin of a sensor's value. Exactly one of
// ElementRef or BoundsRef is populated, selected by Kind.
type Source struct {
	Kind      SourceKind `json:"kind"`
	ElementRef *ElementRef `json:"element_ref,omitempty"`
	BoundsRef  *Bounds     `json:"bounds_ref,omitempty"`
}

// ElementRef identifies a UI element by its stable signature.
type ElementRef struct {
	ResourceID   string  `json:"resource_id,omitempty"`
	Text         string  `json:"text,omitempty"`
	Class        string  `json:"class,omitempty"`
	HierarchyPath string `json:"hierarchy_path,omitempty"`
	StoredBounds *Bounds `json:"stored_bounds,omitempty"`
}

// Bounds is an on-screen rectangle.
type Bounds struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// CenterDistance returns the Euclidean distance between the centers of two
// bounds, used to break ties among ambiguous element matches.
func (b Bounds) CenterDistance(o Bounds) float64 {
	cx1, cy1 := float64(b.X)+float64(b.W)/2, float64(b.Y)+float64(b.H)/2
	cx2, cy2 := float64(o.X)+float64(o.W)/2, float64(o.Y)+float64(o.H)/2
	dx, dy := cx1-cx2, cy1-cy2
	return sqrt(dx*dx + dy*dy)
}

func sqrt(f float64) float64 {
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

// Sensor is a persisted capture definition bound to one device.
type Sensor struct {
	SensorID             string          `json:"sensor_id"`
	StableDeviceID       string          `json:"stable_device_id"`
	FriendlyName         string          `json:"friendly_name"`
	SensorType           SensorType      `json:"sensor_type"`
	DeviceClass          string          `json:"device_class,omitempty"`
	Unit                 string          `json:"unit,omitempty"`
	StateClass           string          `json:"state_class,omitempty"`
	Source               Source          `json:"source"`
	Extraction           ExtractionRule  `json:"extraction"`
	UpdateIntervalSeconds int            `json:"update_interval_seconds"`
	Navigation           *NavigationBlock `json:"navigation,omitempty"`
	Enabled              bool            `json:"enabled"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Validate enforces the invariants from spec §3: interval floor and the
// scalar/binary state_class exclusion. Uniqueness of sensor_id within a
// device's file is enforced by the store, not here.
func (s *Sensor) Validate() error {
	b := &ferrors.ValidationBuilder{}
	b.Add(s.SensorID != "", "sensor_id is required")
	b.Add(s.StableDeviceID != "", "stable_device_id is required")
	b.Addf(s.UpdateIntervalSeconds >= 5 && s.UpdateIntervalSeconds <= 3600,
		"update_interval_seconds must be in [5, 3600], got %d", s.UpdateIntervalSeconds)
	b.Addf(s.SensorType == SensorScalar || s.SensorType == SensorBinary,
		"sensor_type must be scalar or binary, got %q", s.SensorType)
	if s.SensorType == SensorBinary {
		b.Add(s.StateClass == "", "state_class must be absent for binary sensors")
	}
	return b.Build()
}
