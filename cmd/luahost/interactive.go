package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/luahost/behavior"
	"github.com/wippyai/luahost/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

const (
	maxOutput = 8
	maxLogs   = 6
)

// logSink keeps the last lines written by the logger so they can be drawn
// inside the TUI instead of over it.
type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		s.lines = append(s.lines, line)
	}
	if n := len(s.lines); n > maxLogs {
		s.lines = append([]string(nil), s.lines[n-maxLogs:]...)
	}
	return len(p), nil
}

func (s *logSink) Sync() error { return nil }

func (s *logSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type outputLine struct {
	text string
	err  bool
}

type frameMsg struct{}

// interactiveModel drives the runtime from bubbletea's update loop, so every
// VM access happens on one goroutine.
type interactiveModel struct {
	rt     *runtime.Runtime
	sink   *logSink
	input  textinput.Model
	output []outputLine
	frame  time.Duration
	now    time.Duration
	frames int
	paused bool
}

func newInteractiveModel(rt *runtime.Runtime, sink *logSink, fps int) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `return 1 + 1   or   :attach enemy`
	ti.Prompt = "lua> "
	ti.Width = 60
	ti.Focus()

	return &interactiveModel{
		rt:    rt,
		sink:  sink,
		input: ti,
		frame: time.Second / time.Duration(fps),
	}
}

func (m *interactiveModel) nextFrame() tea.Cmd {
	return tea.Tick(m.frame, func(time.Time) tea.Msg { return frameMsg{} })
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.nextFrame())
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+g":
			m.rt.GC()
			m.print(false, "full collection done")
			return m, nil

		case "ctrl+p":
			m.paused = !m.paused
			return m, nil

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line != "" {
				m.execute(line)
			}
			return m, nil
		}

	case frameMsg:
		if !m.paused {
			m.now += m.frame
			m.frames++
			behavior.TickAll(m.rt)
			m.rt.Tick(m.now)
		}
		return m, m.nextFrame()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) print(isErr bool, format string, args ...any) {
	m.output = append(m.output, outputLine{text: fmt.Sprintf(format, args...), err: isErr})
	if n := len(m.output); n > maxOutput {
		m.output = m.output[n-maxOutput:]
	}
}

// execute runs one input line: a ":command" or a Lua chunk.
func (m *interactiveModel) execute(line string) {
	if !strings.HasPrefix(line, ":") {
		res, err := m.rt.DoString(line)
		if err != nil {
			m.print(true, "%v", err)
			return
		}
		if len(res) == 0 {
			m.print(false, "ok")
		}
		for i, v := range res {
			m.print(false, "[%d] %s", i+1, formatValue(v))
		}
		return
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "attach":
		for _, name := range fields[1:] {
			b := behavior.New(m.rt, name)
			if err := b.Init(); err != nil {
				m.print(true, "%s: %v", name, err)
				continue
			}
			b.Enable()
			m.print(false, "attached %s as %s", name, b.Object().ID())
		}

	case "destroy", "disable", "enable":
		if len(fields) != 2 {
			m.print(true, "usage: :%s <index>", fields[0])
			return
		}
		live := behavior.Live(m.rt)
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 1 || idx > len(live) {
			m.print(true, "no behavior #%s", fields[1])
			return
		}
		b := live[idx-1]
		switch fields[0] {
		case "destroy":
			b.Destroy()
		case "disable":
			b.Disable()
		case "enable":
			b.Enable()
		}
		m.print(false, "%s %s: %s", b.Module(), b.Object().ID(), b.State())

	case "call":
		if len(fields) < 2 {
			m.print(true, "usage: :call <function> [args...]")
			return
		}
		args := make([]any, 0, len(fields)-2)
		for _, a := range fields[2:] {
			if n, err := strconv.ParseFloat(a, 64); err == nil {
				args = append(args, n)
			} else {
				args = append(args, a)
			}
		}
		res, err := m.rt.CallGlobalFunction(fields[1], true, args...)
		if err != nil {
			m.print(true, "%v", err)
			return
		}
		for i, v := range res {
			m.print(false, "[%d] %s", i+1, formatValue(v))
		}

	case "config":
		if len(fields) != 2 {
			m.print(true, "usage: :config <name>")
			return
		}
		v, err := m.rt.LoadConfigModule(fields[1])
		if err != nil {
			m.print(true, "%v", err)
			return
		}
		m.print(false, "%v", v)

	case "gc":
		m.rt.GC()
		m.print(false, "full collection done")

	default:
		m.print(true, "unknown command :%s", fields[0])
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Lua Host"))
	st := m.rt.Stats()
	status := fmt.Sprintf(" frame %d  t=%s  gc steps %d  full %d  pending %d",
		m.frames, m.now.Truncate(time.Millisecond), st.Steps, st.FullGCs, st.Pending)
	if m.paused {
		status += "  " + errorStyle.Render("paused")
	}
	b.WriteString(helpStyle.Render(status))
	b.WriteString("\n\n")

	var live strings.Builder
	bridges := behavior.Live(m.rt)
	if len(bridges) == 0 {
		live.WriteString(helpStyle.Render("no behaviors attached"))
	}
	for i, br := range bridges {
		if i > 0 {
			live.WriteString("\n")
		}
		id := br.Object().ID()
		if len(id) > 8 {
			id = id[:8]
		}
		live.WriteString(fmt.Sprintf("%d. %s %s %s", i+1, moduleStyle.Render(br.Module()), id, stateStyle.Render(br.State().String())))
	}
	b.WriteString(panelStyle.Render(live.String()))
	b.WriteString("\n")

	for _, line := range m.output {
		if line.err {
			b.WriteString(errorStyle.Render(line.text))
		} else {
			b.WriteString(resultStyle.Render(line.text))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if logs := m.sink.snapshot(); len(logs) > 0 {
		b.WriteString(helpStyle.Render(strings.Join(logs, "\n")))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render(":attach m • :enable/:disable/:destroy n • :call fn • :config name • ctrl+g gc • ctrl+p pause • esc quit"))

	return b.String()
}

func runInteractive(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	sink := &logSink{}
	log, err := newLogger(cfg.LogLevel, sink)
	if err != nil {
		return err
	}

	rt, err := boot(cfg, opts.attach, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := tea.NewProgram(newInteractiveModel(rt, sink, opts.fps), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
