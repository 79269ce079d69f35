// Package watchui renders the live pushed sample stream from the daemon's
// broadcast socket as a full-screen bubbletea program. It is a real
// consumer of internal/client and internal/protocol, not a mock: every
// frame it draws comes straight off the wire.
package watchui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ngrantham/pausewatch/internal/client"
	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/display"
	"github.com/ngrantham/pausewatch/internal/model"
	"github.com/ngrantham/pausewatch/internal/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

type sampleMsg protocol.SampleMessage

type initialStateMsg protocol.InitialStateMessage

type errMsg struct{ err error }

// maxHistory bounds how many past samples feed the score chart.
const maxHistory = 120

// Model is the bubbletea model driving the watch view.
type Model struct {
	c   *client.Client
	cfg config.Config

	daemonPID  int
	bootTime   time.Time
	openEvents int

	latest     protocol.SampleMessage
	history    []protocol.SampleMessage
	haveSample bool
	lastErr    error

	width, height int
}

func (m *Model) pushHistory(sm protocol.SampleMessage) {
	m.history = append(m.history, sm)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// New connects to the daemon (auto-starting it if necessary) and returns
// a Model ready to run.
func New() (Model, error) {
	c, err := client.New()
	if err != nil {
		return Model{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	return Model{c: c, cfg: cfg}, nil
}

func (m Model) Init() tea.Cmd {
	return readNext(m.c)
}

// readNext blocks on the client's next message and wraps it by type; the
// returned tea.Cmd runs on its own goroutine so the UI stays responsive
// while waiting on the socket.
func readNext(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		typ, data, err := c.ReadMessage()
		if err != nil {
			return errMsg{err}
		}
		switch typ {
		case protocol.MessageInitialState:
			var msg protocol.InitialStateMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return errMsg{err}
			}
			return initialStateMsg(msg)
		case protocol.MessageSample:
			var msg protocol.SampleMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return errMsg{err}
			}
			return sampleMsg(msg)
		default:
			return errMsg{fmt.Errorf("unexpected message type %q", typ)}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.c.Close()
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case initialStateMsg:
		m.daemonPID = msg.DaemonPID
		m.bootTime = time.Unix(msg.BootTime, 0)
		m.openEvents = len(msg.OpenEventIDs)
		for _, sm := range msg.Recent {
			m.pushHistory(sm)
		}
		if latest, ok := protocol.InitialStateMessage(msg).Latest(); ok {
			m.latest = latest
			m.haveSample = true
		}
		return m, readNext(m.c)
	case sampleMsg:
		m.latest = protocol.SampleMessage(msg)
		m.pushHistory(m.latest)
		m.haveSample = true
		return m, readNext(m.c)
	case errMsg:
		m.lastErr = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s  pid %d  boot %s  open events %d\n\n",
		headerStyle.Render("pausewatchd watch"),
		m.daemonPID,
		m.bootTime.Format("15:04:05"),
		m.openEvents,
	)

	if m.lastErr != nil {
		fmt.Fprintf(&b, "%s\n", errStyle.Render(m.lastErr.Error()))
		return b.String()
	}

	if !m.haveSample {
		fmt.Fprintln(&b, dimStyle.Render("waiting for first sample..."))
		return b.String()
	}

	ts := time.Unix(m.latest.Timestamp, 0)
	fmt.Fprintf(&b, "tick %s  processes %d  max score %d  tier %d\n\n",
		ts.Format("15:04:05"), m.latest.ProcessCount, m.latest.MaxScore, m.latest.Tier)

	if len(m.history) > 1 {
		points := make([]display.ChartPoint, len(m.history))
		for i, sm := range m.history {
			points[i] = display.ChartPoint{Time: sm.Timestamp, Value: float64(sm.MaxScore)}
		}
		display.RenderChart(&b, display.ChartConfig{
			Title:      "max score",
			Width:      60,
			Height:     10,
			YFormatter: display.FormatScoreAxis,
		}, []display.ChartSeries{{Name: "score", Points: points}})
		fmt.Fprintln(&b)
	}

	if len(m.latest.RogueProcesses) == 0 {
		fmt.Fprintln(&b, dimStyle.Render("no rogue processes"))
	} else {
		procs := make([]model.ScoredProcess, len(m.latest.RogueProcesses))
		for i, p := range m.latest.RogueProcesses {
			procs[i] = p.FromJSON()
		}
		display.RenderRogueTable(&b, procs)

		var suspects []string
		for _, p := range procs {
			if m.cfg.IsSuspect(p.Command) {
				suspects = append(suspects, p.Command)
			}
		}
		if len(suspects) > 0 {
			fmt.Fprintf(&b, "\n%s %v\n", warnStyle.Render("suspect pattern match:"), suspects)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", dimStyle.Render("q to quit"))
	return b.String()
}
