package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/flight-playback/pkg/playback"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

func testStore() *trajectory.Store {
	flight := func(number string, startMs, endMs int64) *trajectory.Flight {
		return &trajectory.Flight{
			FlightNumber: number,
			Origin:       "LHR",
			Destination:  "CDG",
			Start:        time.UnixMilli(startMs).UTC(),
			End:          time.UnixMilli(endMs).UTC(),
			Waypoints: []trajectory.Waypoint{
				{Longitude: -0.4543, Latitude: 51.47, Altitude: 10000, HasAltitude: true},
				{Longitude: 2.5479, Latitude: 49.0097, Altitude: 10000, HasAltitude: true},
			},
		}
	}
	// Three ten-minute steps
	return trajectory.NewStaticStore([]*trajectory.Flight{
		flight("BA100", 0, 1_200_000),
		flight("AF200", 600_000, 1_800_000),
	})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "home":
		return tea.KeyMsg{Type: tea.KeyHome}
	case "end":
		return tea.KeyMsg{Type: tea.KeyEnd}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModelStepping(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatalf("newModel failed: %v", err)
	}
	if m.timeline.TenMinSteps != 3 || len(m.frame.Positions) != 1 {
		t.Fatalf("Unexpected initial state: %d steps, %d positions", m.timeline.TenMinSteps, len(m.frame.Positions))
	}

	tests := []struct {
		key        string
		wantStep   int
		wantActive int
	}{
		{"left", 0, 1},
		{"right", 1, 2},
		{"right", 2, 2},
		{"end", 3, 1},
		{"right", 3, 1},
		{"home", 0, 1},
		{"l", 1, 2},
		{"h", 0, 1},
	}
	for _, tt := range tests {
		m, _ = update(t, m, key(tt.key))
		if m.step != tt.wantStep || len(m.frame.Positions) != tt.wantActive {
			t.Errorf("After %s: expected step %d with %d active, got step %d with %d",
				tt.key, tt.wantStep, tt.wantActive, m.step, len(m.frame.Positions))
		}
	}
}

func TestModelPlayback(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	m, cmd := update(t, m, key("space"))
	if !m.playing || cmd == nil {
		t.Fatal("Expected playback to start with a tick")
	}
	id := m.tickID

	// A stale tick does nothing
	if m2, cmd := update(t, m, tickMsg{id: id - 1}); m2.step != 0 || cmd != nil {
		t.Errorf("Stale tick advanced playback to step %d", m2.step)
	}

	for want := 1; want <= 3; want++ {
		m, cmd = update(t, m, tickMsg{id: id})
		if m.step != want {
			t.Fatalf("Expected step %d, got %d", want, m.step)
		}
	}
	if m.playing || cmd != nil {
		t.Error("Expected playback to stop at the last step")
	}

	// Playing again from the end restarts
	m, _ = update(t, m, key("space"))
	if !m.playing || m.step != 0 || m.tickID == id {
		t.Errorf("Expected restart from step 0 with a new tick id, got step %d id %d", m.step, m.tickID)
	}

	m, _ = update(t, m, key("space"))
	if m.playing {
		t.Error("Expected pause")
	}
}

func TestModelSelection(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	m, _ = update(t, m, key("right"))
	m, _ = update(t, m, key("down"))
	if m.selected != 1 {
		t.Fatalf("Expected second flight selected, got %d", m.selected)
	}
	m, _ = update(t, m, key("down"))
	if m.selected != 1 {
		t.Errorf("Selection moved past the list: %d", m.selected)
	}

	// Stepping to a frame with fewer flights clamps the selection
	m, _ = update(t, m, key("end"))
	if m.selected != 0 {
		t.Errorf("Expected selection clamped to 0, got %d", m.selected)
	}
}

func TestModelReload(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	m, _ = update(t, m, reloadMsg{err: errors.New("disk gone")})
	if m.err == nil || !strings.Contains(m.View(), "disk gone") {
		t.Error("Expected reload error in view")
	}

	// Any key clears the error
	m, _ = update(t, m, key("right"))
	if m.err != nil {
		t.Error("Expected error cleared")
	}

	_, cmd := update(t, m, key("r"))
	if cmd == nil {
		t.Fatal("Expected reload command")
	}
	msg, ok := cmd().(reloadMsg)
	if !ok || msg.err != nil || msg.snap.Generation != 2 {
		t.Fatalf("Unexpected reload result %+v", msg)
	}
	m, _ = update(t, m, msg)
	if !strings.Contains(m.status, "Reloaded 2 flights") {
		t.Errorf("Unexpected status %q", m.status)
	}
}

func TestModelView(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	m, _ = update(t, m, key("right"))

	view := m.View()
	for _, want := range []string{"FLIGHT PLAYBACK", "Step 1/3", "BA100", "AF200", "LHR→CDG", "nm to go"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestNewModelEmpty(t *testing.T) {
	_, err := newModel(trajectory.NewStaticStore(nil), time.Millisecond)
	if !errors.Is(err, playback.ErrEmptyDataset) {
		t.Fatalf("Expected ErrEmptyDataset, got %v", err)
	}
	if !strings.Contains(emptyDatasetHint(err), "start and end") {
		t.Errorf("Unexpected hint %q", emptyDatasetHint(err))
	}
}

func TestRemaining(t *testing.T) {
	m, err := newModel(testStore(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	p := m.frame.Positions[0]
	// LHR to CDG is roughly 190 nm
	if d := remaining(p); d < 170 || d > 210 {
		t.Errorf("Expected about 190 nm to go at departure, got %.1f", d)
	}
}
