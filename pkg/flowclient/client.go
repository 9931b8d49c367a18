// Package flowclient is the HTTP client cmd/flowctl speaks to flowd's
// pkg/httpapi surface with, following the same "thin wrapper over
// encoding/json + net/http" shape the rest of the module's JSON plumbing
// uses (pkg/httpapi/respond.go, grounded on r3e-network-service_layer's
// http.go helpers).
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// Client talks to one flowd instance's HTTP surface.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New builds a Client against baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// APIError is returned when flowd responds with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flowd: %s (status %d)", e.Message, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func devicePath(stableID, rest string) string {
	return "/api/devices/" + url.PathEscape(stableID) + rest
}

// ListFlows returns every flow configured for stableID.
func (c *Client) ListFlows(ctx context.Context, stableID string) ([]*flowmodel.Flow, error) {
	var flows []*flowmodel.Flow
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/flows"), nil, &flows)
	return flows, err
}

// GetFlow fetches one flow by id.
func (c *Client) GetFlow(ctx context.Context, stableID, flowID string) (*flowmodel.Flow, error) {
	var flow flowmodel.Flow
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/flows/"+url.PathEscape(flowID)), nil, &flow)
	return &flow, err
}

// CreateFlow creates a new flow.
func (c *Client) CreateFlow(ctx context.Context, stableID string, flow *flowmodel.Flow) (*flowmodel.Flow, error) {
	var out flowmodel.Flow
	err := c.do(ctx, http.MethodPost, devicePath(stableID, "/flows"), flow, &out)
	return &out, err
}

// DeleteFlow removes a flow by id.
func (c *Client) DeleteFlow(ctx context.Context, stableID, flowID string) error {
	return c.do(ctx, http.MethodDelete, devicePath(stableID, "/flows/"+url.PathEscape(flowID)), nil, nil)
}

// RunFlow enqueues a flow for immediate execution.
func (c *Client) RunFlow(ctx context.Context, stableID, flowID string) error {
	return c.do(ctx, http.MethodPost, devicePath(stableID, "/flows/"+url.PathEscape(flowID)+"/run"), nil, nil)
}

// FlowHistory returns the bounded execution log for a flow.
func (c *Client) FlowHistory(ctx context.Context, stableID, flowID string) ([]flowmodel.FlowExecutionResult, error) {
	var results []flowmodel.FlowExecutionResult
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/flows/"+url.PathEscape(flowID)+"/history"), nil, &results)
	return results, err
}

// ListActions returns every action configured for stableID.
func (c *Client) ListActions(ctx context.Context, stableID string) ([]*flowmodel.Action, error) {
	var actions []*flowmodel.Action
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/actions"), nil, &actions)
	return actions, err
}

// ListSensors returns every sensor configured for stableID.
func (c *Client) ListSensors(ctx context.Context, stableID string) ([]*flowmodel.Sensor, error) {
	var sensors []*flowmodel.Sensor
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/sensors"), nil, &sensors)
	return sensors, err
}

// DeviceStatus is the decoded response from GET /api/devices/{id}.
type DeviceStatus struct {
	StableDeviceID string `json:"stable_device_id"`
	State          string `json:"state"`
	Watched        bool   `json:"watched"`
}

// GetDeviceStatus fetches a device's connectivity state.
func (c *Client) GetDeviceStatus(ctx context.Context, stableID string) (*DeviceStatus, error) {
	var status DeviceStatus
	err := c.do(ctx, http.MethodGet, devicePath(stableID, ""), nil, &status)
	return &status, err
}

// DeviceServices is the decoded response from GET /api/devices/{id}/services.
type DeviceServices struct {
	StableDeviceID string          `json:"stable_device_id"`
	Watched        bool            `json:"watched"`
	State          string          `json:"state"`
	QueueDepth     int             `json:"queue_depth"`
	Performance    json.RawMessage `json:"performance"`
}

// GetDeviceServices fetches queue depth and performance rollup for a device.
func (c *Client) GetDeviceServices(ctx context.Context, stableID string) (*DeviceServices, error) {
	var svc DeviceServices
	err := c.do(ctx, http.MethodGet, devicePath(stableID, "/services"), nil, &svc)
	return &svc, err
}

// AuditEvent mirrors audit.Event's JSON shape without importing pkg/audit,
// since flowctl talks to flowd purely over HTTP.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	StableID  string    `json:"stable_device_id"`
	Operation string    `json:"operation"`
	FlowID    string    `json:"flow_id,omitempty"`
	ActionID  string    `json:"action_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// AuditQuery holds the query filters accepted by GET /api/audit.
type AuditQuery struct {
	StableID     string
	User         string
	Operation    string
	FlowID       string
	FailuresOnly bool
	Last         time.Duration
	Limit        int
}

// QueryAudit fetches audit events matching q.
func (c *Client) QueryAudit(ctx context.Context, q AuditQuery) ([]*AuditEvent, error) {
	v := url.Values{}
	if q.StableID != "" {
		v.Set("stable_device_id", q.StableID)
	}
	if q.User != "" {
		v.Set("user", q.User)
	}
	if q.Operation != "" {
		v.Set("operation", q.Operation)
	}
	if q.FlowID != "" {
		v.Set("flow_id", q.FlowID)
	}
	if q.FailuresOnly {
		v.Set("failures", "true")
	}
	if q.Last > 0 {
		v.Set("last", q.Last.String())
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}

	var events []*AuditEvent
	err := c.do(ctx, http.MethodGet, "/api/audit?"+v.Encode(), nil, &events)
	return events, err
}

// WhoAmI mirrors httpapi's whoAmIResponse without importing pkg/auth.
type WhoAmI struct {
	User        string   `json:"user"`
	SuperUser   bool     `json:"super_user"`
	Groups      []string `json:"groups"`
	Permissions []string `json:"permissions"`
	Enforced    bool     `json:"enforced"`
}

// WhoAmI reports the calling user's resolved permissions.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	var out WhoAmI
	err := c.do(ctx, http.MethodGet, "/api/auth/whoami", nil, &out)
	return &out, err
}
