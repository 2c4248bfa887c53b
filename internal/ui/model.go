// Package ui is the terminal monitor for a running relay. It connects to the
// watch channel as an observer and shows the traffic, the alerts sent and the
// last weather and tide replies.
package ui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
	"github.com/ngmaloney/dive-relay/internal/models"
	"github.com/ngmaloney/dive-relay/internal/relay"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// AppState represents the current state of the application
type AppState int

const (
	StateConnecting AppState = iota // Dialing the relay
	StateLive                       // Receiving traffic
	StateError                      // Connection failed or closed
)

// ActivePane represents which pane is currently focused
type ActivePane int

const (
	PaneTraffic ActivePane = iota
	PaneConditions
)

// Model represents the application's state
type Model struct {
	state      AppState
	activePane ActivePane
	width      int
	height     int
	err        error

	// Connection
	endpoint string
	dial     Dialer
	feed     Feed
	spinner  spinner.Model

	// Traffic
	traffic  list.Model
	received int
	nodes    map[string]bool

	// Latest decoded payloads
	alerts    map[string]alertEntry
	weather   *models.WeatherSummary
	tide      *models.TideDay
	heartRate *heartrate.Reading

	now func() time.Time
}

// NewModel creates a monitor for a relay endpoint such as ws://localhost:8080/watch
func NewModel(endpoint string) Model {
	return NewModelWithDialer(endpoint, ObserverDialer(endpoint))
}

// NewModelWithDialer creates a monitor that opens its feed with dial
func NewModelWithDialer(endpoint string, dial Dialer) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		state:      StateConnecting,
		activePane: PaneTraffic,
		endpoint:   endpoint,
		dial:       dial,
		spinner:    s,
		traffic:    createTrafficList(60, 20),
		nodes:      make(map[string]bool),
		alerts:     make(map[string]alertEntry),
		now:        time.Now,
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, connect(m.dial))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle window size
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = msg.Width
		m.height = msg.Height
		m.traffic.SetSize(m.trafficWidth(), msg.Height-6)
		return m, nil
	}

	switch msg := msg.(type) {
	case errMsg:
		m.err = msg.err
		m.state = StateError
		return m, nil

	case connectedMsg:
		m.feed = msg.feed
		m.state = StateLive
		m.err = nil
		return m, waitForEnvelope(msg.feed)

	case envelopeMsg:
		m.observe(msg.env)
		if m.feed == nil {
			return m, nil
		}
		return m, waitForEnvelope(m.feed)

	case feedClosedMsg:
		m.feed = nil
		m.err = fmt.Errorf("connection closed: %w", msg.err)
		m.state = StateError
		return m, nil

	case spinner.TickMsg:
		if m.state != StateConnecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	// Global keys; q is text while the list filter is open
	filtering := m.traffic.FilterState() == list.Filtering
	if keyMsg.String() == "ctrl+c" || (keyMsg.String() == "q" && !filtering) {
		if m.feed != nil {
			m.feed.Close()
			m.feed = nil
		}
		return m, tea.Quit
	}

	switch m.state {
	case StateError:
		if keyMsg.String() == "r" {
			m.state = StateConnecting
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, connect(m.dial))
		}
		return m, nil

	case StateLive:
		if !filtering {
			switch {
			case keyMsg.Type == tea.KeyTab:
				if m.activePane == PaneTraffic {
					m.activePane = PaneConditions
				} else {
					m.activePane = PaneTraffic
				}
				return m, nil
			case keyMsg.String() == "c":
				m.traffic.SetItems(nil)
				return m, nil
			}
		}
		if m.activePane == PaneTraffic {
			var cmd tea.Cmd
			m.traffic, cmd = m.traffic.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// observe records an envelope and decodes the payloads the panes show
func (m *Model) observe(env watch.Envelope) {
	prependEnvelope(&m.traffic, env)
	m.received++

	if env.Direction == watch.Inbound {
		if env.NodeID != "" {
			m.nodes[env.NodeID] = true
		}
		if env.Path == relay.PathResponseHeartRate {
			if r, err := heartrate.Parse(env.NodeID, env.Data, env.At); err == nil {
				m.heartRate = &r
			}
		}
		return
	}

	switch env.Path {
	case relay.PathResponseWeather:
		var w models.WeatherSummary
		if err := json.Unmarshal([]byte(env.Data), &w); err == nil {
			m.weather = &w
		}
	case relay.PathResponseTide:
		if first := gjson.Get(env.Data, "tides.0"); first.Exists() {
			day := bada.ParseTideDay(json.RawMessage(first.Raw))
			m.tide = &day
		}
	default:
		if entry, ok := parseAlert(env.Path, env.Data, env.At); ok {
			m.alerts[entry.kind] = entry
		}
	}
}

func (m Model) trafficWidth() int {
	w := m.width/2 - 2
	if w < 30 {
		w = 30
	}
	return w
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case StateConnecting:
		return m.viewConnecting()
	case StateLive:
		return m.viewLive()
	case StateError:
		return m.viewError()
	}
	return ""
}

// viewConnecting renders the dial screen
func (m Model) viewConnecting() string {
	title := titleStyle.Render("Dive Relay Monitor")
	status := mutedStyle.Render("Connecting to " + m.endpoint + "...")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		"",
		title,
		"",
		fmt.Sprintf("%s %s", m.spinner.View(), status),
	)
}

// viewError renders the error view
func (m Model) viewError() string {
	title := errorStyle.Render("✗ Error")

	errorMsg := "An unknown error occurred"
	if m.err != nil {
		errorMsg = m.err.Error()
	}

	help := helpStyle.Render("R: Reconnect • Q: Quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, "", errorMsg, "", help)
}

// viewLive renders the traffic list beside the condition panes
func (m Model) viewLive() string {
	header := titleStyle.Render("Dive Relay Monitor") + "  " + mutedStyle.Render(m.endpoint)

	status := fmt.Sprintf("%s · %d messages", successStyle.Render(fmt.Sprintf("%d watch(es) seen", len(m.nodes))), m.received)
	if m.heartRate != nil {
		status += fmt.Sprintf(" · ♥ %d bpm at %s", m.heartRate.BPM, m.heartRate.At.Format("15:04:05"))
	}

	trafficStyle, conditionsTitle := paneStyle, sectionHeaderStyle.Render("CONDITIONS")
	if m.activePane == PaneTraffic {
		trafficStyle = activePaneStyle
	} else {
		conditionsTitle = activeTitleStyle.Render("CONDITIONS")
	}

	left := trafficStyle.Render(m.traffic.View())

	rightWidth := m.width - m.trafficWidth() - 6
	if rightWidth < 30 {
		rightWidth = 30
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		conditionsTitle,
		m.renderAlertPane(rightWidth),
		m.renderWeatherPane(rightWidth),
		m.renderTidePane(rightWidth),
	)

	help := helpStyle.Render("Tab: Switch panes • /: Filter • C: Clear • Q: Quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right),
		help,
	)
}
