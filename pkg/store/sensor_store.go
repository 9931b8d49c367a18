// Package store implements the process-wide Sensor/Action/Flow stores from
// spec §3/§6: singletons keyed by StableID, write-through to one file per
// device under a shared writer lock, readers holding a shared lock.
package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

type sensorFileLayout struct {
	DeviceID string             `json:"device_id"`
	Sensors  []*flowmodel.Sensor `json:"sensors"`
}

// SensorStore persists Sensor records, one file per stable device id.
type SensorStore struct {
	mu      sync.RWMutex
	dataDir string
	cache   map[string][]*flowmodel.Sensor // stable_id -> sensors
}

// NewSensorStore opens a store rooted at dataDir (spec: data/sensors_<id>.json).
func NewSensorStore(dataDir string) *SensorStore {
	return &SensorStore{dataDir: dataDir, cache: make(map[string][]*flowmodel.Sensor)}
}

func (s *SensorStore) path(stableID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("sensors_%s.json", stableID))
}

func (s *SensorStore) load(stableID string) ([]*flowmodel.Sensor, error) {
	if cached, ok := s.cache[stableID]; ok {
		return cached, nil
	}
	var f sensorFileLayout
	if err := atomicfile.ReadJSON(s.path(stableID), &f); err != nil {
		return nil, err
	}
	s.cache[stableID] = f.Sensors
	return f.Sensors, nil
}

func (s *SensorStore) persist(stableID string, connID string, sensors []*flowmodel.Sensor) error {
	s.cache[stableID] = sensors
	return atomicfile.WriteJSON(s.path(stableID), sensorFileLayout{DeviceID: connID, Sensors: sensors})
}

// GetAll returns every sensor for a device.
func (s *SensorStore) GetAll(stableID string) ([]*flowmodel.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(stableID)
}

// Get returns one sensor by id, or ferrors.ErrNotFound.
func (s *SensorStore) Get(stableID, sensorID string) (*flowmodel.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensors, err := s.load(stableID)
	if err != nil {
		return nil, err
	}
	for _, sn := range sensors {
		if sn.SensorID == sensorID {
			return sn, nil
		}
	}
	return nil, ferrors.NewNotFoundError("sensor", sensorID)
}

// Create adds a new sensor, rejecting a duplicate sensor_id within the
// device's file (spec §8's per-file uniqueness invariant).
func (s *SensorStore) Create(connID, stableID string, sensor *flowmodel.Sensor) error {
	if err := sensor.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sensors, err := s.load(stableID)
	if err != nil {
		return err
	}
	for _, sn := range sensors {
		if sn.SensorID == sensor.SensorID {
			return &ferrors.ConflictError{Kind: "sensor", ID: sensor.SensorID}
		}
	}
	now := time.Now().UTC()
	sensor.CreatedAt, sensor.UpdatedAt = now, now
	sensors = append(sensors, sensor)
	return s.persist(stableID, connID, sensors)
}

// Update replaces the stored sensor whose sensor_id matches the incoming
// record, keeping its created_at. A record whose sensor_id matches no
// stored sensor yields NotFound.
func (s *SensorStore) Update(connID, stableID string, sensor *flowmodel.Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sensors, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, sn := range sensors {
		if sn.SensorID == sensor.SensorID {
			sensor.SensorID = sn.SensorID
			sensor.CreatedAt = sn.CreatedAt
			sensor.UpdatedAt = time.Now().UTC()
			if err := sensor.Validate(); err != nil {
				return err
			}
			sensors[i] = sensor
			return s.persist(stableID, connID, sensors)
		}
	}
	return ferrors.NewNotFoundError("sensor", sensor.SensorID)
}

// Delete removes a sensor by id.
func (s *SensorStore) Delete(connID, stableID, sensorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sensors, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, sn := range sensors {
		if sn.SensorID == sensorID {
			sensors = append(sensors[:i], sensors[i+1:]...)
			return s.persist(stableID, connID, sensors)
		}
	}
	return ferrors.NewNotFoundError("sensor", sensorID)
}

// InvalidateCache drops the in-memory cache for a device, forcing the next
// read to reload from disk — used after the migrator rewrites a file
// out-of-band.
func (s *SensorStore) InvalidateCache(stableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, stableID)
}
