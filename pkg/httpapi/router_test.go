package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newtron-network/flowmesh/pkg/broker"
	"github.com/newtron-network/flowmesh/pkg/config"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/identity"
	"github.com/newtron-network/flowmesh/pkg/monitor"
	"github.com/newtron-network/flowmesh/pkg/navigation"
	"github.com/newtron-network/flowmesh/pkg/perf"
	"github.com/newtron-network/flowmesh/pkg/scheduler"
	"github.com/newtron-network/flowmesh/pkg/store"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, flow *flowmodel.Flow) (*flowmodel.FlowExecutionResult, error) {
	return &flowmodel.FlowExecutionResult{FlowID: flow.FlowID, Success: true}, nil
}

type noopDialer struct{}

func (noopDialer) Dial(ctx context.Context, connID string) (transport.DeviceTransport, error) {
	return nil, context.DeadlineExceeded
}

type noopPublisher struct{}

func (noopPublisher) PublishSensorUpdate(ctx context.Context, sensor *flowmodel.Sensor, value string, attrs map[string]interface{}) error {
	return nil
}
func (noopPublisher) PublishAvailability(ctx context.Context, connID string, online bool, stableID string) error {
	return nil
}
func (noopPublisher) PublishAlert(ctx context.Context, alert *flowmodel.PerformanceAlert) error {
	return nil
}
func (noopPublisher) PublishDiscovery(ctx context.Context, payload broker.DiscoveryPayload) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	resolver, err := identity.New(dir + "/identity.json")
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}

	sched := scheduler.New(fakeExecutor{}, 4)
	mon := monitor.New(noopDialer{}, config.MonitorConfig{
		ProbeIntervalSeconds:   60,
		BackoffStartSeconds:    1,
		BackoffCapSeconds:      10,
		RediscoverAfterRetries: 3,
	}, config.TimeoutConfig{HealthCheck: time.Second, Connect: time.Second})
	perfMon := perf.New(sched, noopPublisher{}, perf.DefaultConfig())

	return &Server{
		Resolver:   resolver,
		Flows:      store.NewFlowStore(dir),
		Actions:    store.NewActionStore(dir),
		Sensors:    store.NewSensorStore(dir),
		History:    store.NewHistoryStore(dir),
		Scheduler:  sched,
		Monitor:    mon,
		Perf:       perfMon,
		Navigation: navigation.NewManager(dir),
	}
}

func testFlow() flowmodel.Flow {
	return flowmodel.Flow{
		FlowID:                "f1",
		Name:                  "test flow",
		Enabled:               true,
		UpdateIntervalSeconds: 30,
		Steps:                 []flowmodel.Step{{Kind: flowmodel.StepGoHome}},
	}
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestFlowCRUDRoundTrip(t *testing.T) {
	s := newTestServer(t)
	flow := testFlow()

	rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/flows", flow)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/devices/D1/flows", flow)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/devices/D1/flows/f1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/devices/D1/flows/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/devices/D1/flows/f1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
}

func TestFlowValidationRejected(t *testing.T) {
	s := newTestServer(t)
	bad := testFlow()
	bad.UpdateIntervalSeconds = 1 // below the floor of 5

	rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/flows", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunFlowEnqueues(t *testing.T) {
	s := newTestServer(t)
	flow := testFlow()
	if rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/flows", flow); rec.Code != http.StatusOK {
		t.Fatalf("create: %d", rec.Code)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/flows/f1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunMissingFlow(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/flows/nope/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeviceServicesUnwatched(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/devices/D1/services", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if watched, _ := body["watched"].(bool); watched {
		t.Fatalf("expected watched=false for a never-registered device")
	}
}

func TestSensorCRUDRoundTrip(t *testing.T) {
	s := newTestServer(t)
	sensor := flowmodel.Sensor{
		SensorID:              "s1",
		FriendlyName:          "battery",
		SensorType:            flowmodel.SensorScalar,
		UpdateIntervalSeconds: 30,
		Source:                flowmodel.Source{Kind: flowmodel.SourceBounds, BoundsRef: &flowmodel.Bounds{X: 1, Y: 1, W: 1, H: 1}},
	}

	rec := doRequest(t, s, http.MethodPost, "/api/devices/D1/sensors", sensor)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/devices/D1/sensors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var got []flowmodel.Sensor
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].SensorID != "s1" {
		t.Fatalf("expected one sensor s1, got %+v", got)
	}
}
