package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// ProxyTransport drives a device indirectly through a server-side proxy that
// multiplexes many devices behind one HTTP endpoint — the third of the
// three duck-typed flavors the original tool shared informally.
type ProxyTransport struct {
	baseURL string
	device  string
	client  *http.Client
}

// NewProxyTransport builds a transport that issues requests to baseURL,
// scoped to one device id.
func NewProxyTransport(baseURL, device string, client *http.Client) *ProxyTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxyTransport{baseURL: baseURL, device: device, client: client}
}

func (t *ProxyTransport) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/devices/"+t.device+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return data, fmt.Errorf("proxy %s: status %d", path, resp.StatusCode)
	}
	return data, nil
}

func (t *ProxyTransport) Connect(ctx context.Context) (bool, error) {
	_, err := t.post(ctx, "/connect", nil)
	return err == nil, err
}

func (t *ProxyTransport) Shell(ctx context.Context, cmd string) (string, error) {
	out, err := t.post(ctx, "/shell", map[string]string{"cmd": cmd})
	return string(out), err
}

func (t *ProxyTransport) Tap(ctx context.Context, x, y int) error {
	_, err := t.post(ctx, "/tap", map[string]int{"x": x, "y": y})
	return err
}

func (t *ProxyTransport) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	_, err := t.post(ctx, "/swipe", map[string]int{"x1": x1, "y1": y1, "x2": x2, "y2": y2, "duration_ms": durationMS})
	return err
}

func (t *ProxyTransport) Keyevent(ctx context.Context, code int) error {
	_, err := t.post(ctx, "/keyevent", map[string]int{"code": code})
	return err
}

func (t *ProxyTransport) Text(ctx context.Context, s string) error {
	_, err := t.post(ctx, "/text", map[string]string{"text": s})
	return err
}

func (t *ProxyTransport) LaunchApp(ctx context.Context, pkg string) (bool, error) {
	out, err := t.post(ctx, "/launch", map[string]string{"package": pkg})
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

func (t *ProxyTransport) Screenshot(ctx context.Context) ([]byte, error) {
	return t.post(ctx, "/screenshot", nil)
}

func (t *ProxyTransport) GetUIElements(ctx context.Context, boundsOnly bool) ([]flowmodel.UIElement, error) {
	out, err := t.post(ctx, "/elements", map[string]bool{"bounds_only": boundsOnly})
	if err != nil {
		return nil, err
	}
	var elements []flowmodel.UIElement
	if err := json.Unmarshal(out, &elements); err != nil {
		return nil, fmt.Errorf("parsing ui elements: %w", err)
	}
	return elements, nil
}

func (t *ProxyTransport) Close() error { return nil }
