package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

type flowFileLayout struct {
	Flows []*flowmodel.Flow `json:"flows"`
}

// FlowStore persists Flow records, one file per stable device id.
type FlowStore struct {
	mu        sync.RWMutex
	configDir string
	cache     map[string][]*flowmodel.Flow
}

// NewFlowStore opens a store rooted at configDir (spec: config/flows/flows_<id>.json).
func NewFlowStore(configDir string) *FlowStore {
	return &FlowStore{configDir: configDir, cache: make(map[string][]*flowmodel.Flow)}
}

func (s *FlowStore) path(stableID string) string {
	return filepath.Join(s.configDir, "flows", fmt.Sprintf("flows_%s.json", stableID))
}

func (s *FlowStore) load(stableID string) ([]*flowmodel.Flow, error) {
	if cached, ok := s.cache[stableID]; ok {
		return cached, nil
	}
	var f flowFileLayout
	if err := atomicfile.ReadJSON(s.path(stableID), &f); err != nil {
		return nil, err
	}
	s.cache[stableID] = f.Flows
	return f.Flows, nil
}

func (s *FlowStore) persist(stableID string, flows []*flowmodel.Flow) error {
	s.cache[stableID] = flows
	return atomicfile.WriteJSON(s.path(stableID), flowFileLayout{Flows: flows})
}

// GetAll returns every flow for a device.
func (s *FlowStore) GetAll(stableID string) ([]*flowmodel.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(stableID)
}

// Get returns one flow by id.
func (s *FlowStore) Get(stableID, flowID string) (*flowmodel.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flows, err := s.load(stableID)
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		if f.FlowID == flowID {
			return f, nil
		}
	}
	return nil, ferrors.NewNotFoundError("flow", flowID)
}

// Create adds a new flow, validated per spec §8's interval floor.
func (s *FlowStore) Create(stableID string, flow *flowmodel.Flow) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	flows, err := s.load(stableID)
	if err != nil {
		return err
	}
	for _, f := range flows {
		if f.FlowID == flow.FlowID {
			return &ferrors.ConflictError{Kind: "flow", ID: flow.FlowID}
		}
	}
	flows = append(flows, flow)
	return s.persist(stableID, flows)
}

// Update replaces an existing flow.
func (s *FlowStore) Update(stableID string, flow *flowmodel.Flow) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	flows, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, f := range flows {
		if f.FlowID == flow.FlowID {
			flows[i] = flow
			return s.persist(stableID, flows)
		}
	}
	return ferrors.NewNotFoundError("flow", flow.FlowID)
}

// Delete removes a flow by id.
func (s *FlowStore) Delete(stableID, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flows, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, f := range flows {
		if f.FlowID == flowID {
			flows = append(flows[:i], flows[i+1:]...)
			return s.persist(stableID, flows)
		}
	}
	return ferrors.NewNotFoundError("flow", flowID)
}
