package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/mixerctl/internal/link"
	"github.com/chaz8081/mixerctl/internal/link/protocol"
	"github.com/chaz8081/mixerctl/internal/monitor"
)

func newTestServer(t *testing.T, p *mockPlatform, opts Options) (*Session, *httptest.Server) {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	s := newTestSession(p, opts)
	ts := httptest.NewServer(NewServer(s))
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func post(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, newMockPlatform(mixer), Options{})

	resp := get(t, ts, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decode[map[string]string](t, resp); body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusInitiallyDisconnected(t *testing.T) {
	_, ts := newTestServer(t, newMockPlatform(mixer), Options{})

	snap := decode[Snapshot](t, get(t, ts, "/api/status"))
	if snap.Status != "disconnected" || snap.Device != nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestConnectAndDrive(t *testing.T) {
	p := newMockPlatform(mixer)
	_, ts := newTestServer(t, p, Options{})

	resp := post(t, ts, "/api/connect", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d, want 200", resp.StatusCode)
	}
	snap := decode[Snapshot](t, resp)
	if snap.Status != "connected" || snap.Display.Text != "Connected to ESP32_Mixer" {
		t.Errorf("snapshot after connect = %+v", snap)
	}

	resp = post(t, ts, "/api/manual/start", `{"speed":42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manual start status = %d, want 200", resp.StatusCode)
	}
	if snap := decode[Snapshot](t, resp); !snap.Manual.Running || snap.Manual.Speed != 42 {
		t.Errorf("manual = %+v", snap.Manual)
	}

	post(t, ts, "/api/manual/stop", "")
	post(t, ts, "/api/auto/start", `{"profile":"Sinusoidal","min_speed":"10","max_speed":"90","period":"15"}`)
	post(t, ts, "/api/auto/stop", "")

	want := "MANUAL_MODE|START|42\nMANUAL_MODE|STOP\nAUTO_MODE|START|Sinusoidal|10|90|15\nAUTO_MODE|STOP\n"
	if got := p.latestTransport().written(); got != want {
		t.Errorf("wire bytes = %q, want %q", got, want)
	}

	resp = post(t, ts, "/api/disconnect", "")
	if snap := decode[Snapshot](t, resp); snap.Status != "disconnected" {
		t.Errorf("status after disconnect = %q", snap.Status)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		path    string
		body    string
		want    int
	}{
		{"not connected", false, "/api/manual/stop", "", http.StatusConflict},
		{"bad json", true, "/api/manual/start", `{"speed":`, http.StatusBadRequest},
		{"missing speed", true, "/api/manual/start", `{}`, http.StatusBadRequest},
		{"speed out of range", true, "/api/manual/start", `{"speed":150}`, http.StatusBadRequest},
		{"incomplete auto", true, "/api/auto/start", `{"profile":"Ramp","min_speed":"10"}`, http.StatusBadRequest},
		{"empty profile", true, "/api/auto/start", `{"min_speed":"10","max_speed":"20","period":"15"}`, http.StatusBadRequest},
		{"bad period", true, "/api/auto/start", `{"profile":"Ramp","min_speed":"10","max_speed":"20","period":"99"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMockPlatform(mixer)
			_, ts := newTestServer(t, p, Options{})
			if tt.connect {
				post(t, ts, "/api/connect", "")
			}

			resp := post(t, ts, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body := decode[map[string]any](t, resp)
			if body["error"] == "" || body["code"] != float64(tt.want) {
				t.Errorf("body = %v", body)
			}
			if tr := p.latestTransport(); tr != nil && tr.written() != "" {
				t.Errorf("wrote %q for a rejected command", tr.written())
			}
		})
	}
}

func TestWriteFaultMapsToBadGateway(t *testing.T) {
	p := newMockPlatform(mixer)
	s, ts := newTestServer(t, p, Options{})
	post(t, ts, "/api/connect", "")
	p.latestTransport().failWrites(errRadio)

	resp := post(t, ts, "/api/manual/start", `{"speed":5}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if s.Manager().Status() != link.StatusError {
		t.Errorf("Status() = %v, want error", s.Manager().Status())
	}
	if manual, _ := s.Modes().Snapshot(); manual.Running {
		t.Error("manual marked running after a failed send")
	}
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *mockPlatform)
		want  int
	}{
		{"adapter off", func(p *mockPlatform) { p.enabled = false }, http.StatusServiceUnavailable},
		{"no permission", func(p *mockPlatform) { p.permitted = false }, http.StatusForbidden},
		{"no device", func(p *mockPlatform) { p.devices = nil }, http.StatusNotFound},
		{"dial fails", func(p *mockPlatform) { p.dialErr = errRadio }, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMockPlatform(mixer)
			tt.setup(p)
			_, ts := newTestServer(t, p, Options{})

			if resp := post(t, ts, "/api/connect", ""); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&protocol.FieldError{Field: "speed"}, http.StatusBadRequest},
		{ErrIncomplete, http.StatusBadRequest},
		{link.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", link.ErrDeviceNotFound), http.StatusNotFound},
		{&link.TransportError{Op: "dial", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&link.TransportError{Op: "write", Err: errRadio}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDevicesEndpoint(t *testing.T) {
	_, ts := newTestServer(t, newMockPlatform(mixer), Options{})

	body := decode[struct {
		Devices []DeviceInfo `json:"devices"`
	}](t, get(t, ts, "/api/devices"))
	if len(body.Devices) != 1 || body.Devices[0].Address != mixer.Address || !body.Devices[0].Match {
		t.Errorf("devices = %+v", body.Devices)
	}
}

func TestTelemetryEndpoint(t *testing.T) {
	_, ts := newTestServer(t, newMockPlatform(mixer), Options{})
	if resp := get(t, ts, "/api/telemetry"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("telemetry without monitor: status = %d, want 404", resp.StatusCode)
	}

	h := monitor.NewHistory(10)
	h.Add(monitor.Sample{RPM: 1200})
	h.Add(monitor.Sample{RPM: 1300})
	_, ts = newTestServer(t, newMockPlatform(mixer), Options{Telemetry: h})

	body := decode[struct {
		Latest  monitor.Sample   `json:"latest"`
		Samples []monitor.Sample `json:"samples"`
	}](t, get(t, ts, "/api/telemetry"))
	if len(body.Samples) != 2 || body.Latest.RPM != 1300 {
		t.Errorf("telemetry = %+v", body)
	}
}

func TestWebSocketStreamsDisplay(t *testing.T) {
	_, ts := newTestServer(t, newMockPlatform(mixer), Options{})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	var d link.Display
	if err := conn.ReadJSON(&d); err != nil {
		t.Fatalf("read initial display: %v", err)
	}

	post(t, ts, "/api/connect", "")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for d.Text != "Connected to ESP32_Mixer" {
		if err := conn.ReadJSON(&d); err != nil {
			t.Fatalf("read display: %v (last %+v)", err, d)
		}
	}
	if !d.Connected || d.DeviceName != mixer.Name {
		t.Errorf("display = %+v", d)
	}
}
