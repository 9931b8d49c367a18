package navigation

import (
	"time"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// ScreenObservation is one point where the executor captured the device's
// activity and landmark set, either before or after running a flow step.
type ScreenObservation struct {
	Activity  string
	Landmarks []flowmodel.Landmark
}

// MinedStep pairs the action the executor ran with the screens observed
// immediately before and after it, for a single launch_app-pinned flow.
type MinedStep struct {
	Before ScreenObservation
	Action flowmodel.ActionDescriptor
	After  ScreenObservation
}

// MineFlow reconstructs (screen_i, action_i) -> screen_i+1 transitions from a
// completed flow execution's step-by-step observations, per spec §4.7's
// passive-learning mode. Transitions already known from recording are
// reinforced rather than duplicated; new ones are tagged learned_from=mining.
func (m *Manager) MineFlow(pkg string, steps []MinedStep) (int, error) {
	lock := m.packageLock(pkg)
	lock.Lock()
	defer lock.Unlock()

	g, err := m.Graph(pkg)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	learned := 0
	for _, step := range steps {
		before := ensureScreen(g, step.Before.Activity, step.Before.Landmarks, now)
		after := ensureScreen(g, step.After.Activity, step.After.Landmarks, now)
		if before.ScreenID == after.ScreenID {
			continue
		}

		tid := flowmodel.TransitionID(before.ScreenID, after.ScreenID, step.Action)
		found := false
		for _, t := range g.Transitions {
			if t.TransitionID == tid {
				t.RecordUse(true, 0, now)
				found = true
				break
			}
		}
		if !found {
			t := &flowmodel.Transition{
				TransitionID: tid,
				SourceID:     before.ScreenID,
				TargetID:     after.ScreenID,
				Action:       step.Action,
				LearnedFrom:  flowmodel.LearnedMining,
			}
			t.RecordUse(true, 0, now)
			g.Transitions = append(g.Transitions, t)
			learned++
		}
	}
	if learned > 0 {
		if err := m.persist(pkg); err != nil {
			return learned, err
		}
	}
	return learned, nil
}
