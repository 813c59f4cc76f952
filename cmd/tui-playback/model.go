package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flight-playback/pkg/coordinates"
	"github.com/unklstewy/flight-playback/pkg/playback"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

const (
	timelineWidth = 60
	listRows      = 15
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	playingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	elapsedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

// Dataset is what the viewer plays back. *trajectory.Store implements it.
type Dataset interface {
	playback.Source
	Reload(ctx context.Context) (*trajectory.Snapshot, error)
}

type model struct {
	dataset  Dataset
	engine   *playback.Engine
	timeline playback.TimeRange
	interval time.Duration

	step     int
	playing  bool
	tickID   int
	selected int
	frame    playback.Frame

	status string
	err    error
}

// tickMsg advances playback. Ticks from a superseded play session carry
// an old id and are ignored.
type tickMsg struct {
	id int
}

type reloadMsg struct {
	snap *trajectory.Snapshot
	err  error
}

func newModel(dataset Dataset, interval time.Duration) (model, error) {
	m := model{
		dataset:  dataset,
		engine:   playback.NewEngine(dataset),
		interval: interval,
	}
	tr, err := m.engine.ComputeTimeRange()
	if err != nil {
		return m, err
	}
	m.timeline = tr
	m.refresh()
	return m, nil
}

func (m model) tick() tea.Cmd {
	id := m.tickID
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return tickMsg{id: id}
	})
}

func (m model) reload() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.dataset.Reload(context.Background())
		return reloadMsg{snap: snap, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = nil
		m.status = ""

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "left", "h":
			m.seek(m.step - 1)
		case "right", "l":
			m.seek(m.step + 1)
		case "home", "g":
			m.seek(0)
		case "end", "G":
			m.seek(m.timeline.TenMinSteps)
		case " ", "space":
			m.playing = !m.playing
			if m.playing {
				// Restart from the beginning once the end is reached
				if m.step >= m.timeline.TenMinSteps {
					m.seek(0)
				}
				m.tickID++
				return m, m.tick()
			}
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.frame.Positions)-1 {
				m.selected++
			}
		case "r":
			return m, m.reload()
		}

	case tickMsg:
		if !m.playing || msg.id != m.tickID {
			return m, nil
		}
		m.seek(m.step + 1)
		if m.step >= m.timeline.TenMinSteps {
			m.playing = false
			return m, nil
		}
		return m, m.tick()

	case reloadMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		tr, err := m.engine.ComputeTimeRange()
		if err != nil {
			m.err = err
			m.playing = false
			return m, nil
		}
		m.timeline = tr
		m.seek(m.step)
		m.status = fmt.Sprintf("Reloaded %d flights (generation %d)", msg.snap.Len(), msg.snap.Generation)
	}

	return m, nil
}

// seek moves to step, clamped to the time range.
func (m *model) seek(step int) {
	m.step = max(0, min(step, m.timeline.TenMinSteps))
	m.refresh()
}

func (m *model) refresh() {
	m.frame, _ = m.engine.ComputeFrame(playback.AtStep(m.step))
	if m.selected >= len(m.frame.Positions) {
		m.selected = max(0, len(m.frame.Positions)-1)
	}
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("FLIGHT PLAYBACK"))
	s.WriteString("\n\n")

	state := pausedStyle.Render("[PAUSED]")
	if m.playing {
		state = playingStyle.Render("[PLAYING]")
	}
	s.WriteString(fmt.Sprintf("Step %d/%d  %s  %s\n",
		m.step, m.timeline.TenMinSteps,
		m.frame.Instant.UTC().Format("2006-01-02 15:04 UTC"), state))
	s.WriteString(m.renderTimeline())
	s.WriteString("\n\n")

	s.WriteString(m.renderFlightList())
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	} else if m.status != "" {
		s.WriteString(helpStyle.Render(m.status))
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("←/→: Step  SPACE: Play/Pause  HOME/END: Jump  ↑/↓: Select  R: Reload  Q: Quit"))
	return s.String()
}

func (m model) renderTimeline() string {
	filled := timelineWidth
	if m.timeline.TenMinSteps > 0 {
		filled = m.step * timelineWidth / m.timeline.TenMinSteps
	}
	return elapsedStyle.Render(strings.Repeat("█", filled)) +
		helpStyle.Render(strings.Repeat("░", timelineWidth-filled))
}

func (m model) renderFlightList() string {
	var list strings.Builder

	positions := m.frame.Positions
	list.WriteString(headerStyle.Render("Active Flights:"))
	list.WriteString(fmt.Sprintf(" (%d)", len(positions)))
	list.WriteString("\n\n")

	if len(positions) == 0 {
		list.WriteString(helpStyle.Render("  No flights in the air"))
		list.WriteString("\n")
		return list.String()
	}

	// Window the list around the selection
	start := 0
	if m.selected > listRows/2 && len(positions) > listRows {
		start = min(m.selected-listRows/2, len(positions)-listRows)
	}
	end := min(start+listRows, len(positions))

	for i := start; i < end; i++ {
		p := positions[i]
		f := p.Flight

		prefix := "  "
		if i == m.selected {
			prefix = "→ "
		}

		line := fmt.Sprintf("%s%-8s %3s→%-3s  %5.1f%%  Hdg:%3.0f°  %6.0f m  %6.1f nm to go",
			prefix,
			f.FlightNumber,
			f.Origin,
			f.Destination,
			p.Progress*100,
			p.Bearing,
			p.Altitude,
			remaining(p),
		)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		list.WriteString(line)
		list.WriteString("\n")

		if i == m.selected {
			list.WriteString(detailStyle.Render(fmt.Sprintf("    %s %s  %s → %s  %s-%s\n",
				f.Aircraft, f.Registration, f.OriginName, f.DestinationName,
				f.Start.UTC().Format("15:04"), f.End.UTC().Format("15:04"))))
		}
	}
	return list.String()
}

// remaining is the great-circle distance from the position to the final
// waypoint.
func remaining(p playback.Position) float64 {
	wps := p.Flight.Waypoints
	if len(wps) == 0 {
		return 0
	}
	last := wps[len(wps)-1]
	return coordinates.DistanceNauticalMiles(p.Geographic(), coordinates.Geographic{
		Latitude:  last.Latitude,
		Longitude: last.Longitude,
	})
}

// emptyDatasetHint explains a collection with nothing to play.
func emptyDatasetHint(err error) string {
	if errors.Is(err, playback.ErrEmptyDataset) {
		return "the dataset has no flights with both start and end times"
	}
	return err.Error()
}
