package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/bridge-runtime/peer"
	"github.com/wippyai/bridge-runtime/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const historyLimit = 12

type logEntry struct {
	input  string
	output string
	isErr  bool
}

type interactiveModel struct {
	err     error
	p       *peer.Peer
	done    chan error
	hostOut io.Closer
	objects map[string]*peer.Object
	next    int
	history []logEntry
	input   textinput.Model
	intSize int
}

type bridgeReadyMsg struct {
	err     error
	p       *peer.Peer
	done    chan error
	hostOut io.Closer
}

type evalMsg struct {
	input  string
	output string
	err    error
}

func newInteractiveModel(intSize int) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "int 42"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{
		objects: make(map[string]*peer.Object),
		input:   ti,
		intSize: intSize,
	}
}

// Init starts an in-process bridge: the session serves the demo
// namespaces on its own goroutine and the TUI drives the peer side.
func (m *interactiveModel) Init() tea.Cmd {
	return m.startBridge
}

func (m *interactiveModel) startBridge() tea.Msg {
	guestIn, hostOut := io.Pipe()
	hostIn, guestOut := io.Pipe()

	s, err := session.New(session.Config{
		In:       guestIn,
		Out:      guestOut,
		IntSize:  m.intSize,
		Resolver: demoResolver(),
	})
	if err != nil {
		return bridgeReadyMsg{err: err}
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	p, err := peer.New(peer.Config{
		In:      hostIn,
		Out:     hostOut,
		IntSize: m.intSize,
	})
	if err != nil {
		return bridgeReadyMsg{err: err}
	}
	return bridgeReadyMsg{p: p, done: done, hostOut: hostOut}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.shutdown()
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "q" {
				m.shutdown()
				return m, tea.Quit
			}
			return m, func() tea.Msg { return m.eval(line) }
		}

	case bridgeReadyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.p = msg.p
		m.done = msg.done
		m.hostOut = msg.hostOut

	case evalMsg:
		entry := logEntry{input: msg.input, output: msg.output}
		if msg.err != nil {
			entry.output = msg.err.Error()
			entry.isErr = true
		}
		m.history = append(m.history, entry)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) shutdown() {
	if m.p != nil {
		m.p.Close()
		<-m.done
	}
	if m.hostOut != nil {
		m.hostOut.Close()
	}
}

// eval executes one REPL command against the live bridge.
func (m *interactiveModel) eval(line string) tea.Msg {
	if m.p == nil {
		return evalMsg{input: line, err: fmt.Errorf("bridge not ready")}
	}

	fields := strings.Fields(line)
	op, args := fields[0], fields[1:]

	switch op {
	case "int":
		if len(args) != 1 {
			return usage(line, "int <value>")
		}
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.MakeInt(v)
		return m.store(line, o, err)

	case "str":
		if len(args) == 0 {
			return usage(line, "str <text>")
		}
		o, err := m.p.MakeStr(strings.Join(args, " "))
		return m.store(line, o, err)

	case "bytes":
		if len(args) != 1 {
			return usage(line, "bytes <hex>")
		}
		raw, err := hex.DecodeString(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.MakeBytes(raw)
		return m.store(line, o, err)

	case "tuple":
		items, err := m.lookupAll(args)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.MakeTuple(items...)
		return m.store(line, o, err)

	case "global":
		if len(args) != 1 {
			return usage(line, "global <namespace.member>")
		}
		o, err := m.p.MakeGlobal(args[0])
		return m.store(line, o, err)

	case "call":
		if len(args) == 0 {
			return usage(line, "call <fn> [args...]")
		}
		objs, err := m.lookupAll(args)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.Call(objs[0], objs[1:]...)
		return m.store(line, o, err)

	case "star":
		if len(args) != 3 {
			return usage(line, "star <fn> <args-tuple> <kwargs>")
		}
		objs, err := m.lookupAll(args)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.Starcall(objs[0], objs[1], objs[2])
		return m.store(line, o, err)

	case "dup":
		if len(args) != 1 {
			return usage(line, "dup <obj>")
		}
		src, err := m.lookup(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o, err := m.p.Dup(src)
		return m.store(line, o, err)

	case "getint":
		if len(args) != 1 {
			return usage(line, "getint <obj>")
		}
		o, err := m.lookup(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		v, err := m.p.GetInt(o)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		return evalMsg{input: line, output: strconv.FormatInt(v, 10)}

	case "getstr":
		if len(args) != 1 {
			return usage(line, "getstr <obj>")
		}
		o, err := m.lookup(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		s, err := m.p.GetStr(o)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		return evalMsg{input: line, output: strconv.Quote(s)}

	case "getbytes":
		if len(args) != 1 {
			return usage(line, "getbytes <obj>")
		}
		o, err := m.lookup(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		b, err := m.p.GetBytes(o)
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		return evalMsg{input: line, output: hex.EncodeToString(b)}

	case "release":
		if len(args) != 1 {
			return usage(line, "release <obj>")
		}
		o, err := m.lookup(args[0])
		if err != nil {
			return evalMsg{input: line, err: err}
		}
		o.Release()
		delete(m.objects, normalizeLabel(args[0]))
		return evalMsg{input: line, output: "released"}
	}

	return evalMsg{input: line, err: fmt.Errorf("unknown command %q", op)}
}

func usage(line, u string) tea.Msg {
	return evalMsg{input: line, err: fmt.Errorf("usage: %s", u)}
}

func normalizeLabel(s string) string {
	return strings.TrimPrefix(s, "#")
}

func (m *interactiveModel) lookup(label string) (*peer.Object, error) {
	o, ok := m.objects[normalizeLabel(label)]
	if !ok {
		return nil, fmt.Errorf("no object %q", label)
	}
	return o, nil
}

func (m *interactiveModel) lookupAll(labels []string) ([]*peer.Object, error) {
	objs := make([]*peer.Object, len(labels))
	for i, l := range labels {
		o, err := m.lookup(l)
		if err != nil {
			return nil, err
		}
		objs[i] = o
	}
	return objs, nil
}

// store binds a freshly created object under the next label.
func (m *interactiveModel) store(line string, o *peer.Object, err error) tea.Msg {
	if err != nil {
		var re *peer.RemoteError
		if errors.As(err, &re) {
			re.Object.Release()
		}
		return evalMsg{input: line, err: err}
	}
	label := strconv.Itoa(m.next)
	m.next++
	m.objects[label] = o
	return evalMsg{input: line, output: fmt.Sprintf("#%s (handle %d)", label, o.Handle())}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.p == nil {
		return "Starting bridge..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Bridge Console"))
	b.WriteString(helpStyle.Render(fmt.Sprintf("  int width %d", m.intSize)))
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(opStyle.Render("> " + e.input))
		b.WriteString("\n")
		if e.isErr {
			b.WriteString(errorStyle.Render("  " + e.output))
		} else {
			b.WriteString(resultStyle.Render("  " + e.output))
		}
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	if len(m.objects) > 0 {
		labels := make([]string, 0, len(m.objects))
		for l := range m.objects {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			a, _ := strconv.Atoi(labels[i])
			c, _ := strconv.Atoi(labels[j])
			return a < c
		})
		parts := make([]string, len(labels))
		for i, l := range labels {
			parts[i] = labelStyle.Render("#" + l)
		}
		b.WriteString(helpStyle.Render("objects: "))
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("int str bytes tuple global call star dup getint getstr getbytes release • quit"))

	return b.String()
}

func runInteractive(intSize int) error {
	p := tea.NewProgram(newInteractiveModel(intSize), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
