package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

type deviceStatus struct {
	StableDeviceID string `json:"stable_device_id"`
	State          string `json:"state"`
	Watched        bool   `json:"watched"`
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	state, watched := s.Monitor.State(stableID)
	if !watched {
		writeError(w, ferrors.NewNotFoundError("device", stableID))
		return
	}
	writeJSON(w, http.StatusOK, deviceStatus{StableDeviceID: stableID, State: string(state), Watched: watched})
}

// handleDeviceServices is the minimal stand-in for spec §6's /api/services
// group: current queue depth and the performance monitor's rollup for one
// device. See DESIGN.md for why this group isn't built out further.
func (s *Server) handleDeviceServices(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	state, watched := s.Monitor.State(stableID)

	resp := struct {
		StableDeviceID string      `json:"stable_device_id"`
		Watched        bool        `json:"watched"`
		State          string      `json:"state,omitempty"`
		QueueDepth     int         `json:"queue_depth"`
		Performance    interface{} `json:"performance"`
	}{
		StableDeviceID: stableID,
		Watched:        watched,
		State:          string(state),
		QueueDepth:     s.Scheduler.GetQueueDepth(stableID),
		Performance:    s.Perf.GetMetrics(stableID),
	}
	writeJSON(w, http.StatusOK, resp)
}
