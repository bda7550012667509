package ui

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// ErrInterrupted is returned when the user quits a spinner with ctrl+c.
var ErrInterrupted = errors.New("interrupted")

type foundMsg midea.DeviceIdentity

type scanDoneMsg struct{ err error }

// DiscoveryModel is a Bubble Tea model that spins while a scan runs and lists
// units as they answer.
type DiscoveryModel struct {
	spinner spinner.Model
	label   string
	found   []midea.DeviceIdentity
	err     error
	done    bool
}

// NewDiscoveryModel creates the model with the given label
func NewDiscoveryModel(label string) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return DiscoveryModel{spinner: s, label: label}
}

// Init implements tea.Model
func (m DiscoveryModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.err = ErrInterrupted
			m.done = true
			return m, tea.Quit
		}
	case foundMsg:
		m.found = append(m.found, midea.DeviceIdentity(msg))
		return m, nil
	case scanDoneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m DiscoveryModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s", m.spinner.View(), m.label)
	if n := len(m.found); n > 0 {
		b.WriteString(HeaderCommandStyle.Render(fmt.Sprintf("(%d found)", n)))
	}
	for _, id := range m.found {
		b.WriteString("\n")
		b.WriteString(TroubleshootingItemStyle.Render(fmt.Sprintf("    • %d at %s", id.ID, id.Address())))
	}
	b.WriteString("\n")
	return b.String()
}

// Found returns the units seen so far
func (m DiscoveryModel) Found() []midea.DeviceIdentity {
	return m.found
}

// Err returns the error that ended the scan, if any
func (m DiscoveryModel) Err() error {
	return m.err
}

// Collect drains a discovery sequence without any UI.
func Collect(seq iter.Seq2[midea.DeviceIdentity, error]) ([]midea.DeviceIdentity, error) {
	found := []midea.DeviceIdentity{}
	for id, err := range seq {
		if err != nil {
			return found, err
		}
		found = append(found, id)
	}
	return found, nil
}

// RunDiscovery runs scan while a spinner is drawn on stderr. When stderr is
// not a terminal the sequence is drained silently. The context handed to scan
// is cancelled when the user interrupts.
func RunDiscovery(ctx context.Context, label string, scan func(context.Context) iter.Seq2[midea.DeviceIdentity, error]) ([]midea.DeviceIdentity, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !IsTerminal(os.Stderr) {
		return Collect(scan(ctx))
	}

	p := tea.NewProgram(NewDiscoveryModel(label), tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	go func() {
		for id, err := range scan(ctx) {
			if err != nil {
				p.Send(scanDoneMsg{err: err})
				return
			}
			p.Send(foundMsg(id))
		}
		p.Send(scanDoneMsg{})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(DiscoveryModel)
	found := m.Found()
	if found == nil {
		found = []midea.DeviceIdentity{}
	}
	return found, m.Err()
}
