package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/flight-playback/internal/logging"
	"github.com/unklstewy/flight-playback/pkg/config"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

func testFlight(number string, startMs, endMs int64) *trajectory.Flight {
	return &trajectory.Flight{
		FlightNumber: number,
		Airline:      number[:2],
		Start:        time.UnixMilli(startMs).UTC(),
		End:          time.UnixMilli(endMs).UTC(),
		Waypoints: []trajectory.Waypoint{
			{Longitude: 0, Latitude: 0, Altitude: 10000, HasAltitude: true},
			{Longitude: 10, Latitude: 10, Altitude: 13000, HasAltitude: true},
		},
	}
}

// testFlights spans [0, 1200000]: two ten-minute steps.
func testFlights() []*trajectory.Flight {
	return []*trajectory.Flight{
		testFlight("BA100", 0, 600_000),
		testFlight("LH200", 600_000, 1_200_000),
		{FlightNumber: "XX999", Waypoints: []trajectory.Waypoint{{Longitude: 1, Latitude: 1}}},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.StaticDir = ""
	cfg.Playback.StreamIntervalMs = 1
	cfg.Playback.MinStreamIntervalMs = 1
	return cfg
}

func newTestServer(flights []*trajectory.Flight) *Server {
	return New(trajectory.NewStaticStore(flights), testConfig(), logging.Discard())
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

// collection is the subset of a GeoJSON response the tests look at.
type collection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

func (c collection) flightNumbers() []string {
	out := []string{}
	for _, f := range c.Features {
		out = append(out, f.Properties["flightNumber"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(nil), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestGetTimeRange(t *testing.T) {
	t.Run("Populated", func(t *testing.T) {
		w := do(t, newTestServer(testFlights()), http.MethodGet, "/api/v1/time-range")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var tr TimeRangeResponse
		decode(t, w, &tr)
		if tr != (TimeRangeResponse{MinTime: 0, MaxTime: 1_200_000, TenMinSteps: 2}) {
			t.Errorf("Unexpected time range: %+v", tr)
		}
	})

	t.Run("Empty dataset", func(t *testing.T) {
		// Only unscheduled records
		w := do(t, newTestServer(testFlights()[2:]), http.MethodGet, "/api/v1/time-range")
		if w.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", w.Code)
		}
		var body map[string]string
		decode(t, w, &body)
		if body["error"] == "" {
			t.Errorf("Expected error message, got %v", body)
		}
	})
}

func TestGetPositions(t *testing.T) {
	s := newTestServer(testFlights())

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantTime string
		want     []string
	}{
		{"Default is start of range", "", http.StatusOK, "0", []string{"BA100"}},
		{"Step", "?step=1", http.StatusOK, "600000", []string{"BA100", "LH200"}},
		{"Last step", "?step=2", http.StatusOK, "1200000", []string{"LH200"}},
		{"Absolute time", "?timeMs=300000", http.StatusOK, "300000", []string{"BA100"}},
		{"Step wins over time", "?step=2&timeMs=300000", http.StatusOK, "1200000", []string{"LH200"}},
		{"Before all flights", "?timeMs=-5", http.StatusOK, "-5", []string{}},
		{"Past the end", "?step=99", http.StatusOK, "59400000", []string{}},
		{"Step beyond any instant", "?step=2176375212312980", http.StatusOK, "", []string{}},
		{"Bad step", "?step=one", http.StatusBadRequest, "", nil},
		{"Fractional step", "?step=1.5", http.StatusBadRequest, "", nil},
		{"Bad time", "?step=1&timeMs=noon", http.StatusBadRequest, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/v1/positions"+tt.query)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				var body map[string]string
				decode(t, w, &body)
				if body["error"] == "" {
					t.Errorf("Expected error message, got %v", body)
				}
				return
			}

			if got := w.Header().Get(headerPlaybackTime); got != tt.wantTime {
				t.Errorf("Expected %s %s, got %q", headerPlaybackTime, tt.wantTime, got)
			}
			var fc collection
			decode(t, w, &fc)
			if fc.Type != "FeatureCollection" {
				t.Errorf("Expected FeatureCollection, got %q", fc.Type)
			}
			got := fc.flightNumbers()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected flights %v, got %v", tt.want, got)
			}
			for _, f := range fc.Features {
				if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) != 3 {
					t.Errorf("Expected 3D Point geometry, got %+v", f.Geometry)
				}
				if _, ok := f.Properties["progress"]; !ok {
					t.Error("Expected progress property")
				}
				if _, ok := f.Properties["bearing"]; !ok {
					t.Error("Expected bearing property")
				}
			}
		})
	}

	t.Run("Empty dataset", func(t *testing.T) {
		w := do(t, newTestServer(nil), http.MethodGet, "/api/v1/positions?step=3")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != `{"type":"FeatureCollection","features":[]}` {
			t.Errorf("Unexpected body %s", got)
		}
		if got := w.Header().Get(headerPlaybackTime); got != "" {
			t.Errorf("Expected no playback time header, got %q", got)
		}
	})
}

func TestGetFlights(t *testing.T) {
	s := newTestServer(testFlights())

	t.Run("Listing includes unscheduled", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/flights")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var fc collection
		decode(t, w, &fc)
		got := strings.Join(fc.flightNumbers(), ",")
		if got != "BA100,LH200,XX999" {
			t.Errorf("Unexpected listing %s", got)
		}
	})

	t.Run("By flight number", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/flights/LH200")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var f struct {
			Geometry struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		}
		decode(t, w, &f)
		if f.Geometry.Type != "LineString" || len(f.Geometry.Coordinates) != 2 {
			t.Errorf("Expected two-point LineString, got %+v", f.Geometry)
		}
		if f.Properties["startTime"] != float64(600_000) {
			t.Errorf("Expected startTime 600000, got %v", f.Properties["startTime"])
		}
	})

	t.Run("Unknown flight", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/flights/ZZ1")
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestReload(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int32
	store := trajectory.NewStore(trajectory.LoaderFunc(func(context.Context) ([]*trajectory.Flight, error) {
		if fail.Load() {
			return nil, errors.New("disk gone")
		}
		if calls.Add(1) == 1 {
			return testFlights()[:1], nil
		}
		return testFlights(), nil
	}))
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := New(store, testConfig(), logging.Discard())

	t.Run("Success", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/dataset/reload")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var body map[string]interface{}
		decode(t, w, &body)
		if body["flights"] != float64(3) || body["generation"] != float64(2) {
			t.Errorf("Unexpected reload body %v", body)
		}
	})

	t.Run("Failure keeps snapshot", func(t *testing.T) {
		fail.Store(true)
		defer fail.Store(false)

		w := do(t, s, http.MethodPost, "/api/v1/dataset/reload")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", w.Code)
		}

		w = do(t, s, http.MethodGet, "/api/v1/time-range")
		var tr TimeRangeResponse
		decode(t, w, &tr)
		if tr.MaxTime != 1_200_000 {
			t.Errorf("Expected previous collection to remain, got %+v", tr)
		}
	})

	t.Run("GET not allowed", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/dataset/reload")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", w.Code)
		}
	})
}

func TestGetSystemStatus(t *testing.T) {
	w := do(t, newTestServer(testFlights()), http.MethodGet, "/api/v1/system/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	decode(t, w, &body)

	if body["flights"] != float64(3) {
		t.Errorf("Expected 3 flights, got %v", body["flights"])
	}
	if body["scheduled"] != float64(2) {
		t.Errorf("Expected 2 scheduled, got %v", body["scheduled"])
	}
	if body["generation"] != float64(1) {
		t.Errorf("Expected generation 1, got %v", body["generation"])
	}
	if body["source"] != "memory" {
		t.Errorf("Expected memory source, got %v", body["source"])
	}
	if _, ok := body["loadedAt"]; !ok {
		t.Error("Expected loadedAt")
	}
	if _, ok := body["uptimeSeconds"]; !ok {
		t.Error("Expected uptimeSeconds")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitPerSecond = 0.001
	cfg.Server.RateLimitBurst = 2
	s := New(trajectory.NewStaticStore(testFlights()), cfg, logging.Discard())

	for i := 0; i < 2; i++ {
		if w := do(t, s, http.MethodGet, "/api/v1/time-range"); w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := do(t, s, http.MethodGet, "/api/v1/time-range")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Liveness is not rate limited
	if w := do(t, s, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", w.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Flight playback</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Server.StaticDir = dir
	s := New(trajectory.NewStaticStore(nil), cfg, logging.Discard())

	w := do(t, s, http.MethodGet, "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Flight playback") {
		t.Errorf("Expected landing page, got %d %q", w.Code, w.Body.String())
	}

	// API routes still win over the file server
	if w := do(t, s, http.MethodGet, "/api/v1/system/status"); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestLandingPage(t *testing.T) {
	cfg := testConfig()
	cfg.Server.StaticDir = filepath.Join("..", "..", "web", "static")
	s := New(trajectory.NewStaticStore(testFlights()), cfg, logging.Discard())

	w := do(t, s, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected landing page, got %d", w.Code)
	}
	page := w.Body.String()
	// Flight properties come from the dataset and must be inserted as text
	if strings.Contains(page, "innerHTML") {
		t.Error("Landing page writes dataset values as markup")
	}
	if !strings.Contains(page, "textContent") {
		t.Error("Expected landing page to set cell text")
	}
}

// streamFrame is StreamFrame with the payload decoded generically.
type streamFrame struct {
	Type   string      `json:"type"`
	Step   int         `json:"step"`
	TimeMs int64       `json:"timeMs"`
	Data   *collection `json:"data"`
}

func dialStream(t *testing.T, s *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStream(t *testing.T) {
	s := newTestServer(testFlights())

	t.Run("Full playback", func(t *testing.T) {
		conn := dialStream(t, s, "?intervalMs=1")

		want := [][]string{{"BA100"}, {"BA100", "LH200"}, {"LH200"}}
		for step, numbers := range want {
			var frame streamFrame
			if err := conn.ReadJSON(&frame); err != nil {
				t.Fatalf("Step %d: read failed: %v", step, err)
			}
			if frame.Type != FramePositions || frame.Step != step {
				t.Fatalf("Expected positions frame for step %d, got %s/%d", step, frame.Type, frame.Step)
			}
			if frame.TimeMs != int64(step)*600_000 {
				t.Errorf("Step %d: expected timeMs %d, got %d", step, step*600_000, frame.TimeMs)
			}
			if frame.Data == nil {
				t.Fatalf("Step %d: missing data", step)
			}
			if got := strings.Join(frame.Data.flightNumbers(), ","); got != strings.Join(numbers, ",") {
				t.Errorf("Step %d: expected %v, got %s", step, numbers, got)
			}
		}

		var end streamFrame
		if err := conn.ReadJSON(&end); err != nil {
			t.Fatalf("Reading end frame failed: %v", err)
		}
		if end.Type != FrameEnd || end.Step != 2 || end.Data != nil {
			t.Errorf("Unexpected end frame %+v", end)
		}

		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("Expected normal close, got %v", err)
		}
	})

	t.Run("Start from step", func(t *testing.T) {
		conn := dialStream(t, s, "?step=2&intervalMs=1")

		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != FramePositions || frame.Step != 2 {
			t.Errorf("Expected step 2 first, got %s/%d", frame.Type, frame.Step)
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != FrameEnd {
			t.Errorf("Expected end frame, got %s", frame.Type)
		}
	})

	t.Run("Zero configured interval", func(t *testing.T) {
		cfg := testConfig()
		cfg.Playback.StreamIntervalMs = 0
		cfg.Playback.MinStreamIntervalMs = 0
		conn := dialStream(t, New(trajectory.NewStaticStore(testFlights()), cfg, logging.Discard()), "")

		frames := 0
		for {
			var frame streamFrame
			if err := conn.ReadJSON(&frame); err != nil {
				t.Fatalf("Read after %d frames failed: %v", frames, err)
			}
			frames++
			if frame.Type == FrameEnd {
				break
			}
		}
		if frames != 4 {
			t.Errorf("Expected 3 positions frames and an end frame, got %d frames", frames)
		}
	})

	t.Run("Start past the end", func(t *testing.T) {
		conn := dialStream(t, s, "?step=10&intervalMs=1")

		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != FrameEnd {
			t.Errorf("Expected only an end frame, got %s", frame.Type)
		}
	})
}

func TestStreamRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Playback.MinStreamIntervalMs = 50
	s := New(trajectory.NewStaticStore(testFlights()), cfg, logging.Discard())

	zero := testConfig()
	zero.Playback.StreamIntervalMs = 0
	zero.Playback.MinStreamIntervalMs = 0
	unbounded := New(trajectory.NewStaticStore(testFlights()), zero, logging.Discard())

	tests := []struct {
		name     string
		server   *Server
		query    string
		wantCode int
	}{
		{"Bad step", s, "?step=x", http.StatusBadRequest},
		{"Negative step", s, "?step=-1", http.StatusBadRequest},
		{"Bad interval", s, "?intervalMs=fast", http.StatusBadRequest},
		{"Interval too short", s, "?intervalMs=10", http.StatusBadRequest},
		{"Empty dataset", newTestServer(nil), "", http.StatusNotFound},
		{"Zero interval with no minimum", unbounded, "?intervalMs=0", http.StatusBadRequest},
		{"Negative interval with no minimum", unbounded, "?intervalMs=-5", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, tt.server, http.MethodGet, "/api/v1/stream"+tt.query)
			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}

	t.Run("Not a WebSocket request", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/stream")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 from the upgrader, got %d", w.Code)
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://map.example.com"}
	s := New(trajectory.NewStaticStore(nil), cfg, logging.Discard())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://map.example.com", true},
		{"https://MAP.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
