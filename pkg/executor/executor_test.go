package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/store"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

// fakeTransport is a no-op DeviceTransport double whose calls are recorded
// in order for assertions.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []string
	elements []flowmodel.UIElement
	shell    string

	launchFails   bool
	launchSurface bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{launchSurface: true}
}

func (f *fakeTransport) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeTransport) Connect(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeTransport) Shell(ctx context.Context, cmd string) (string, error) {
	f.record("shell")
	return f.shell, nil
}
func (f *fakeTransport) Tap(ctx context.Context, x, y int) error { f.record("tap"); return nil }
func (f *fakeTransport) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	f.record("swipe")
	return nil
}
func (f *fakeTransport) Keyevent(ctx context.Context, code int) error {
	f.record("keyevent")
	return nil
}
func (f *fakeTransport) Text(ctx context.Context, s string) error { f.record("text"); return nil }
func (f *fakeTransport) LaunchApp(ctx context.Context, pkg string) (bool, error) {
	f.record("launch_app")
	if f.launchFails {
		return false, errors.New("boom")
	}
	return f.launchSurface, nil
}
func (f *fakeTransport) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakeTransport) GetUIElements(ctx context.Context, boundsOnly bool) ([]flowmodel.UIElement, error) {
	f.record("get_ui_elements")
	return f.elements, nil
}
func (f *fakeTransport) Close() error { return nil }

// fakeResolver implements TransportResolver over a static map, toggled
// offline by removing the entry.
type fakeResolver struct {
	mu   sync.Mutex
	devs map[string]*fakeTransport
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{devs: make(map[string]*fakeTransport)}
}

func (r *fakeResolver) set(stableID string, tr *fakeTransport) {
	r.mu.Lock()
	r.devs[stableID] = tr
	r.mu.Unlock()
}

func (r *fakeResolver) offline(stableID string) {
	r.mu.Lock()
	delete(r.devs, stableID)
	r.mu.Unlock()
}

func (r *fakeResolver) Transport(stableID string) (transport.DeviceTransport, error) {
	r.mu.Lock()
	tr, ok := r.devs[stableID]
	r.mu.Unlock()
	if !ok {
		return nil, &ferrors.DeviceOfflineError{StableID: stableID}
	}
	return tr, nil
}

func newTestExecutor(t *testing.T) (*Executor, *fakeResolver, *store.ActionStore, *store.SensorStore) {
	t.Helper()
	resolver := newFakeResolver()
	actions := store.NewActionStore(t.TempDir())
	sensors := store.NewSensorStore(t.TempDir())
	history := store.NewHistoryStore(t.TempDir())

	e := New(Dependencies{
		Devices: resolver,
		Actions: actions,
		Sensors: sensors,
		History: history,
	})
	return e, resolver, actions, sensors
}

func simpleFlow(steps ...flowmodel.Step) *flowmodel.Flow {
	return &flowmodel.Flow{
		FlowID:                "F1",
		StableDeviceID:        "D1",
		Name:                  "test flow",
		Enabled:               true,
		Priority:              flowmodel.PriorityNormal,
		UpdateIntervalSeconds: 60,
		Steps:                 steps,
	}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	e, resolver, _, _ := newTestExecutor(t)
	tr := newFakeTransport()
	resolver.set("D1", tr)

	flow := simpleFlow(
		flowmodel.Step{Kind: flowmodel.StepTap, X: 1, Y: 2},
		flowmodel.Step{Kind: flowmodel.StepGoHome},
	)
	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.ExecutedSteps != 2 {
		t.Fatalf("ExecutedSteps = %d, want 2", result.ExecutedSteps)
	}
	if len(tr.calls) != 2 || tr.calls[0] != "tap" || tr.calls[1] != "keyevent" {
		t.Fatalf("calls = %v", tr.calls)
	}
}

func TestExecuteStopOnErrorFlowLevel(t *testing.T) {
	e, resolver, _, sensors := newTestExecutor(t)
	tr := newFakeTransport()
	resolver.set("D1", tr)

	_ = sensors
	flow := simpleFlow(
		flowmodel.Step{Kind: flowmodel.StepExecuteAction, ActionID: "missing"},
		flowmodel.Step{Kind: flowmodel.StepTap, X: 1, Y: 1},
	)
	flow.StopOnError = true

	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ExecutedSteps != 1 {
		t.Fatalf("ExecutedSteps = %d, want 1 (should stop after first failure)", result.ExecutedSteps)
	}
}

func TestExecuteStepLevelOverrideContinues(t *testing.T) {
	e, resolver, _, _ := newTestExecutor(t)
	tr := newFakeTransport()
	resolver.set("D1", tr)

	dontStop := false
	flow := simpleFlow(
		flowmodel.Step{Kind: flowmodel.StepExecuteAction, ActionID: "missing", StopOnError: &dontStop},
		flowmodel.Step{Kind: flowmodel.StepTap, X: 1, Y: 1},
	)
	flow.StopOnError = true

	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExecutedSteps != 2 {
		t.Fatalf("ExecutedSteps = %d, want 2", result.ExecutedSteps)
	}
	if tr.calls[len(tr.calls)-1] != "tap" {
		t.Fatalf("expected second step to run, calls = %v", tr.calls)
	}
}

func TestExecuteOfflineDeviceFails(t *testing.T) {
	e, _, _, _ := newTestExecutor(t)

	flow := simpleFlow(flowmodel.Step{Kind: flowmodel.StepTap, X: 1, Y: 1})
	result, err := e.Execute(context.Background(), flow)
	if err == nil {
		t.Fatal("expected error for offline device")
	}
	if result.Success {
		t.Fatal("expected unsuccessful result")
	}
	var offline *ferrors.DeviceOfflineError
	if !errors.As(err, &offline) {
		t.Fatalf("err = %v, want DeviceOfflineError", err)
	}
}

func TestExecuteCaptureSensorsPartialFailure(t *testing.T) {
	e, resolver, _, sensors := newTestExecutor(t)
	tr := newFakeTransport()
	tr.elements = []flowmodel.UIElement{{ResourceID: "id/batt", Text: "87%"}}
	resolver.set("D1", tr)

	good := &flowmodel.Sensor{
		SensorID:              "batt",
		StableDeviceID:        "D1",
		FriendlyName:          "Battery",
		SensorType:            flowmodel.SensorScalar,
		UpdateIntervalSeconds: 30,
		Source:                flowmodel.Source{Kind: flowmodel.SourceElement, ElementRef: &flowmodel.ElementRef{ResourceID: "id/batt"}},
		Extraction:            flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{{Method: flowmodel.ExtractNumeric, ExtractNumericFlag: true}}},
	}
	if err := sensors.Create("conn1", "D1", good); err != nil {
		t.Fatalf("seed sensor: %v", err)
	}

	flow := simpleFlow(flowmodel.Step{Kind: flowmodel.StepCaptureSensors, SensorIDs: []string{"batt", "missing"}})
	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected overall failure due to missing sensor")
	}
	log := result.StepLogs[0]
	outcomes, _ := log.Details["sensor_results"].(map[string]interface{})
	if outcomes["batt"] == nil {
		t.Fatalf("expected resolved sensor to still publish, details = %+v", log.Details)
	}
	if outcomes["missing"] == nil {
		t.Fatalf("expected failed sensor outcome recorded, details = %+v", log.Details)
	}
}

func TestExecuteNavigationSkippedWhenAlreadyValidated(t *testing.T) {
	e, resolver, actions, _ := newTestExecutor(t)
	tr := newFakeTransport()
	tr.elements = []flowmodel.UIElement{{ResourceID: "id/target", Text: "ok"}}
	resolver.set("D1", tr)

	action := &flowmodel.Action{
		ActionID:       "a1",
		StableDeviceID: "D1",
		Kind:           flowmodel.ActionTap,
		Enabled:        true,
		Parameters:     flowmodel.ActionParameters{X: 5, Y: 5},
		Navigation: &flowmodel.NavigationBlock{
			TargetApp:             "com.example.app",
			ValidationElement:     &flowmodel.ElementRef{ResourceID: "id/target"},
			MaxNavigationAttempts: 3,
			NavigationTimeoutSeconds: 9,
		},
	}
	if err := actions.Create("D1", action); err != nil {
		t.Fatalf("seed action: %v", err)
	}

	flow := simpleFlow(flowmodel.Step{Kind: flowmodel.StepExecuteAction, ActionID: "a1"})
	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	for _, c := range tr.calls {
		if c == "launch_app" {
			t.Fatalf("expected navigation to be skipped, but launch_app was called: %v", tr.calls)
		}
	}
}

func TestExecuteNavigationExhausted(t *testing.T) {
	e, resolver, actions, _ := newTestExecutor(t)
	tr := newFakeTransport()
	resolver.set("D1", tr) // no elements ever match

	action := &flowmodel.Action{
		ActionID:       "a1",
		StableDeviceID: "D1",
		Kind:           flowmodel.ActionTap,
		Enabled:        true,
		Parameters:     flowmodel.ActionParameters{X: 5, Y: 5},
		Navigation: &flowmodel.NavigationBlock{
			TargetApp:                "com.example.app",
			ValidationElement:        &flowmodel.ElementRef{ResourceID: "id/never"},
			MaxNavigationAttempts:    1,
			NavigationTimeoutSeconds: 1,
		},
	}
	if err := actions.Create("D1", action); err != nil {
		t.Fatalf("seed action: %v", err)
	}

	flow := simpleFlow(flowmodel.Step{Kind: flowmodel.StepExecuteAction, ActionID: "a1"})
	result, err := e.Execute(context.Background(), flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected navigation exhaustion to fail the step")
	}
	if result.StepLogs[0].Error == "" {
		t.Fatalf("expected a step error recorded, logs = %+v", result.StepLogs)
	}
}

func TestExecuteCancelledMidRun(t *testing.T) {
	e, resolver, _, _ := newTestExecutor(t)
	tr := newFakeTransport()
	resolver.set("D1", tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flow := simpleFlow(
		flowmodel.Step{Kind: flowmodel.StepTap, X: 1, Y: 1},
	)
	result, err := e.Execute(ctx, flow)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected cancellation to fail the run")
	}
	if result.ExecutedSteps != 0 {
		t.Fatalf("ExecutedSteps = %d, want 0", result.ExecutedSteps)
	}
}
