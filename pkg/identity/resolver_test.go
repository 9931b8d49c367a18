package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRegisterResolveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "identity.json"))
	if err != nil {
		t.Fatal(err)
	}
	res := r.Register("192.168.1.2:46747", "R9YT50J4S9D", Metadata{Model: "Pixel"})
	if !res.IsNew || res.Rebinding {
		t.Fatalf("unexpected first registration result: %+v", res)
	}
	if got := r.Resolve(res.StableID); got != res.StableID {
		t.Errorf("Resolve(Register(...).stable) = %q, want %q", got, res.StableID)
	}
	if got := r.Resolve("192.168.1.2:46747"); got != "R9YT50J4S9D" {
		t.Errorf("Resolve(conn) = %q, want stable id", got)
	}
	// Idempotence: Resolve(Resolve(x)) == Resolve(x).
	once := r.Resolve("192.168.1.2:46747")
	twice := r.Resolve(once)
	if once != twice {
		t.Errorf("Resolve not idempotent: %q != %q", once, twice)
	}
}

func TestResolveUnknownIsVerbatim(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "identity.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve("unknown-device"); got != "unknown-device" {
		t.Errorf("Resolve(unknown) = %q, want verbatim", got)
	}
}

func TestRebindingTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "identity.json"))
	if err != nil {
		t.Fatal(err)
	}
	var gotStable, gotOld, gotNew string
	r.OnRebind(func(stableID, oldConnID, newConnID string) {
		gotStable, gotOld, gotNew = stableID, oldConnID, newConnID
	})

	r.Register("192.168.1.2:46747", "R9YT50J4S9D", Metadata{})
	res := r.Register("192.168.1.2:58001", "R9YT50J4S9D", Metadata{})
	if !res.Rebinding {
		t.Fatal("expected rebinding=true on second connection id")
	}
	if gotStable != "R9YT50J4S9D" || gotOld != "192.168.1.2:46747" || gotNew != "192.168.1.2:58001" {
		t.Fatalf("callback got (%q,%q,%q)", gotStable, gotOld, gotNew)
	}
	if conn, _ := r.GetConnection("R9YT50J4S9D"); conn != "192.168.1.2:58001" {
		t.Errorf("GetConnection = %q, want new conn id", conn)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "identity.json"))
	if err != nil {
		t.Fatal(err)
	}
	r.Register("192.168.1.2:46747", "abc.def/123", Metadata{})
	got := r.SanitizeForFilename("192.168.1.2:46747")
	if got != "abc_def_123" {
		t.Errorf("SanitizeForFilename = %q, want abc_def_123", got)
	}
}

func TestMigratorRewritesDeviceIDNotSensorID(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	configDir := filepath.Join(dir, "config")
	os.MkdirAll(dataDir, 0o755)
	os.MkdirAll(filepath.Join(configDir, "flows"), 0o755)

	sensors := map[string]interface{}{
		"device_id": "192.168.1.2:46747",
		"sensors": []map[string]interface{}{
			{"sensor_id": "192.168.1.2:46747_temp", "stable_device_id": "old"},
		},
	}
	data, _ := json.Marshal(sensors)
	os.WriteFile(filepath.Join(dataDir, "sensors_R9YT50J4S9D.json"), data, 0o644)

	flows := map[string]interface{}{
		"flows": []map[string]interface{}{
			{"flow_id": "192.168.1.2:46747_f1", "stable_device_id": "old"},
		},
	}
	fdata, _ := json.Marshal(flows)
	os.WriteFile(filepath.Join(configDir, "flows", "flows_R9YT50J4S9D.json"), fdata, 0o644)

	m := NewMigrator(dataDir, configDir)
	report := m.Migrate("R9YT50J4S9D", "192.168.1.2:46747", "192.168.1.2:58001", false)
	if report.Sensors != 1 || report.Flows != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	var sf sensorFile
	raw, _ := os.ReadFile(filepath.Join(dataDir, "sensors_R9YT50J4S9D.json"))
	json.Unmarshal(raw, &sf)
	var sobj map[string]interface{}
	json.Unmarshal(sf.Sensors[0], &sobj)
	if sobj["sensor_id"] != "192.168.1.2:46747_temp" {
		t.Errorf("sensor_id must never be rewritten after creation, got %v", sobj["sensor_id"])
	}
	if sobj["stable_device_id"] != "R9YT50J4S9D" {
		t.Errorf("stable_device_id not rewritten: %v", sobj["stable_device_id"])
	}
}
