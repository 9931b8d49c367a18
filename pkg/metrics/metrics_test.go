package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecordFlowExecutionUpdatesCollectors(t *testing.T) {
	RecordFlowExecution("D1", true, 250*time.Millisecond)
	var m dto.Metric
	if err := flowExecutions.WithLabelValues("D1", "true").Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter to be 1, got %v", got)
	}
}

func TestSetQueueDepthAndDeviceOnline(t *testing.T) {
	SetQueueDepth("D1", 7)
	var m dto.Metric
	if err := queueDepth.WithLabelValues("D1").Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 7 {
		t.Fatalf("expected queue depth gauge 7, got %v", got)
	}

	SetDeviceOnline("D1", true)
	var online dto.Metric
	if err := deviceOnline.WithLabelValues("D1").Write(&online); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := online.GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected device online gauge 1, got %v", got)
	}

	SetDeviceOnline("D1", false)
	var offline dto.Metric
	if err := deviceOnline.WithLabelValues("D1").Write(&offline); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := offline.GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected device online gauge 0, got %v", got)
	}
}

func TestInstrumentHandlerSkipsMetricsPath(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected inner handler to run for /metrics, got status %d", rec.Code)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
}
