package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// connIDFor returns the connection id currently bound to stableID, falling
// back to stableID itself when the device has never registered (sensor
// CRUD must work for a device that is configured but not yet connected).
func (s *Server) connIDFor(stableID string) string {
	if connID, ok := s.Resolver.GetConnection(stableID); ok && connID != "" {
		return connID
	}
	return stableID
}

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	sensors, err := s.Sensors.GetAll(stableID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	sensorID := chi.URLParam(r, "sensorID")
	sensor, err := s.Sensors.Get(stableID, sensorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermSensorEdit, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	var sensor flowmodel.Sensor
	if err := decodeJSON(r.Body, &sensor); err != nil {
		writeError(w, err)
		return
	}
	sensor.StableDeviceID = stableID
	if err := s.Sensors.Create(s.connIDFor(stableID), stableID, &sensor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &sensor)
}

func (s *Server) handleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	sensorID := chi.URLParam(r, "sensorID")
	if err := s.checkPermission(r, auth.PermSensorEdit, auth.NewContext().WithDevice(stableID).WithResource(sensorID)); err != nil {
		writeError(w, err)
		return
	}
	var sensor flowmodel.Sensor
	if err := decodeJSON(r.Body, &sensor); err != nil {
		writeError(w, err)
		return
	}
	sensor.StableDeviceID = stableID
	sensor.SensorID = sensorID
	if err := s.Sensors.Update(s.connIDFor(stableID), stableID, &sensor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &sensor)
}

func (s *Server) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	sensorID := chi.URLParam(r, "sensorID")
	if err := s.checkPermission(r, auth.PermSensorEdit, auth.NewContext().WithDevice(stableID).WithResource(sensorID)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Sensors.Delete(s.connIDFor(stableID), stableID, sensorID); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}
