package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// maxHistoryPerFlow bounds data/flow-history/<flow_id>.json per spec §6.
const maxHistoryPerFlow = 1000

type historyFileLayout struct {
	Results []flowmodel.FlowExecutionResult `json:"results"`
}

// HistoryStore persists a bounded rolling log of FlowExecutionResults, one
// file per flow.
type HistoryStore struct {
	mu      sync.Mutex
	dataDir string
}

// NewHistoryStore opens a store rooted at dataDir (spec: data/flow-history/<flow_id>.json).
func NewHistoryStore(dataDir string) *HistoryStore {
	return &HistoryStore{dataDir: dataDir}
}

func (s *HistoryStore) path(flowID string) string {
	return filepath.Join(s.dataDir, "flow-history", fmt.Sprintf("%s.json", flowID))
}

// Append adds a result, trimming the oldest entries past maxHistoryPerFlow.
func (s *HistoryStore) Append(result flowmodel.FlowExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f historyFileLayout
	if err := atomicfile.ReadJSON(s.path(result.FlowID), &f); err != nil {
		return err
	}
	f.Results = append(f.Results, result)
	if len(f.Results) > maxHistoryPerFlow {
		f.Results = f.Results[len(f.Results)-maxHistoryPerFlow:]
	}
	return atomicfile.WriteJSON(s.path(result.FlowID), f)
}

// GetAll returns the full bounded history for a flow.
func (s *HistoryStore) GetAll(flowID string) ([]flowmodel.FlowExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f historyFileLayout
	if err := atomicfile.ReadJSON(s.path(flowID), &f); err != nil {
		return nil, err
	}
	return f.Results, nil
}
