package zwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPHost talks to the host automation platform through its JSON bridge.
type HTTPHost struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPHost creates a new host client
func NewHTTPHost(baseURL, token string, timeout time.Duration) *HTTPHost {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPHost{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Close closes idle connections
func (h *HTTPHost) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

type versionRequest struct {
	Plugin string `json:"plugin"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type functionRequest struct {
	Plugin   string `json:"plugin"`
	Function string `json:"function"`
	Legacy   bool   `json:"legacy"`
	Args     []any  `json:"args"`
}

type functionResponse struct {
	Result json.RawMessage `json:"result"`
}

// PluginVersion returns the version string of an installed plugin.
func (h *HTTPHost) PluginVersion(ctx context.Context, plugin string) (string, error) {
	var resp versionResponse
	if err := h.do(ctx, http.MethodPost, "plugin/version", versionRequest{Plugin: plugin}, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// LegacyPluginFunction calls a plugin function through the legacy convention.
func (h *HTTPHost) LegacyPluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error) {
	return h.callFunction(ctx, plugin, function, true, args)
}

// PluginFunction calls a plugin function through the native convention.
func (h *HTTPHost) PluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error) {
	return h.callFunction(ctx, plugin, function, false, args)
}

func (h *HTTPHost) callFunction(ctx context.Context, plugin, function string, legacy bool, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}

	var resp functionResponse
	req := functionRequest{Plugin: plugin, Function: function, Legacy: legacy, Args: args}
	if err := h.do(ctx, http.MethodPost, "plugin/function", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", function, err)
	}
	return result, nil
}

// Devices enumerates all devices known to the host.
func (h *HTTPHost) Devices(ctx context.Context) ([]HostDevice, error) {
	var devices []HostDevice
	if err := h.do(ctx, http.MethodGet, "devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Device resolves a device handle.
func (h *HTTPHost) Device(ctx context.Context, ref int) (HostDevice, error) {
	var device HostDevice
	if err := h.do(ctx, http.MethodGet, fmt.Sprintf("devices/%d", ref), nil, &device); err != nil {
		return HostDevice{}, err
	}
	return device, nil
}

func (h *HTTPHost) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+"/"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("host %s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode host response: %w", err)
	}
	return nil
}
