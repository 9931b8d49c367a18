package identity

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/logging"
)

// MigrationReport summarizes a migration run. Errors carries per-file
// failures so a dry run (or a failed live run) can be inspected, matching
// the original tool's dry-run report shape.
type MigrationReport struct {
	Sensors int      `json:"sensors"`
	Actions int      `json:"actions"`
	Flows   int      `json:"flows"`
	Errors  []string `json:"errors,omitempty"`
}

// Migrator rewrites persisted artifacts after a device rebinds to a new
// connection id, following spec §4.2.
type Migrator struct {
	dataDir   string
	configDir string
}

// NewMigrator builds a Migrator rooted at dataDir (sensors/actions) and
// configDir (flows), mirroring the persisted layout in spec §6.
func NewMigrator(dataDir, configDir string) *Migrator {
	return &Migrator{dataDir: dataDir, configDir: configDir}
}

type sensorFile struct {
	DeviceID string            `json:"device_id"`
	Sensors  []json.RawMessage `json:"sensors"`
}

type actionFile struct {
	Actions []json.RawMessage `json:"actions"`
}

type flowFile struct {
	Flows []json.RawMessage `json:"flows"`
}

// Migrate rewrites device_id/stable_device_id/id-prefix fields across a
// device's sensor, action, and flow files. sensor_id itself is never
// rewritten (the §9 Open Question decision). dryRun computes the same
// report without writing.
func (m *Migrator) Migrate(stableID, oldConnID, newConnID string, dryRun bool) MigrationReport {
	var report MigrationReport

	sensorPath := filepath.Join(m.dataDir, fmt.Sprintf("sensors_%s.json", stableID))
	if n, err := m.migrateSensors(sensorPath, newConnID, stableID, dryRun); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("sensors: %v", err))
	} else {
		report.Sensors = n
	}

	actionPath := filepath.Join(m.dataDir, fmt.Sprintf("actions_%s.json", stableID))
	if n, err := m.migrateActions(actionPath, stableID, dryRun); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("actions: %v", err))
	} else {
		report.Actions = n
	}

	flowPath := filepath.Join(m.configDir, "flows", fmt.Sprintf("flows_%s.json", stableID))
	if n, err := m.migrateFlows(flowPath, newConnID, stableID, dryRun); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("flows: %v", err))
	} else {
		report.Flows = n
	}

	for _, e := range report.Errors {
		logging.WithField("stable_id", stableID).Warn("identity migration error: " + e)
	}

	return report
}

func (m *Migrator) migrateSensors(path, newConnID, stableID string, dryRun bool) (int, error) {
	var f sensorFile
	if err := atomicfile.ReadJSON(path, &f); err != nil {
		return 0, err
	}
	if len(f.Sensors) == 0 {
		return 0, nil
	}
	f.DeviceID = newConnID
	count := 0
	for i := range f.Sensors {
		var obj map[string]interface{}
		if err := json.Unmarshal(f.Sensors[i], &obj); err != nil {
			continue
		}
		// sensor_id is never rewritten after creation (see DESIGN.md's
		// Open Question decision); only device_id/stable_device_id move.
		obj["stable_device_id"] = stableID
		rewritten, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		f.Sensors[i] = rewritten
		count++
	}
	if !dryRun {
		if err := atomicfile.WriteJSON(path, f); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (m *Migrator) migrateActions(path, stableID string, dryRun bool) (int, error) {
	var f actionFile
	if err := atomicfile.ReadJSON(path, &f); err != nil {
		return 0, err
	}
	count := 0
	for i := range f.Actions {
		var obj map[string]interface{}
		if err := json.Unmarshal(f.Actions[i], &obj); err != nil {
			continue
		}
		obj["stable_device_id"] = stableID
		rewritten, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		f.Actions[i] = rewritten
		count++
	}
	if !dryRun && count > 0 {
		if err := atomicfile.WriteJSON(path, f); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (m *Migrator) migrateFlows(path, newConnID, stableID string, dryRun bool) (int, error) {
	var f flowFile
	if err := atomicfile.ReadJSON(path, &f); err != nil {
		return 0, err
	}
	count := 0
	for i := range f.Flows {
		var obj map[string]interface{}
		if err := json.Unmarshal(f.Flows[i], &obj); err != nil {
			continue
		}
		obj["stable_device_id"] = stableID
		if fid, ok := obj["flow_id"].(string); ok {
			obj["flow_id"] = rewritePrefix(fid, stableID)
		}
		rewritten, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		f.Flows[i] = rewritten
		count++
	}
	if !dryRun && count > 0 {
		if err := atomicfile.WriteJSON(path, f); err != nil {
			return count, err
		}
	}
	return count, nil
}

// rewritePrefix replaces the portion of id before the first "_" (the
// historical device-id prefix) with the current stable id.
func rewritePrefix(id, stableID string) string {
	idx := strings.Index(id, "_")
	if idx < 0 {
		return id
	}
	return stableID + id[idx:]
}
