package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/types"
)

const statusPollInterval = time.Second

// Model is the Bubble Tea model of the dashboard.
//
// Orchestrator and scheduler calls that may wait on a fetch run inside
// tea.Cmds, never in Update: listeners are invoked while the orchestrator
// holds its apply lock.
type Model struct {
	ctx     context.Context
	orch    *market.Orchestrator
	sched   *scheduler.Scheduler
	updates chan struct{}

	view       market.View
	previous   types.Ticker
	status     scheduler.Status
	sideBySide bool
	editing    bool

	symbolInput textinput.Model
	tradesTable table.Model
	err         error
	width       int
	height      int
}

// NewModel subscribes to orch until ctx is done.
func NewModel(ctx context.Context, orch *market.Orchestrator, sched *scheduler.Scheduler) Model {
	updates := make(chan struct{}, 1)

	unsubscribe := orch.Subscribe(func(market.Update) {
		// coalesce: one pending signal is enough, the model reads the latest view
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return Model{
		ctx:         ctx,
		orch:        orch,
		sched:       sched,
		updates:     updates,
		view:        orch.View(),
		previous:    types.Ticker{},
		status:      sched.Status(),
		sideBySide:  false,
		editing:     false,
		symbolInput: NewSymbolInput(),
		tradesTable: NewTradesTable(),
		err:         nil,
		width:       0,
		height:      0,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.refresh(), pollStatus())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.editing {
			return m.updateSymbolInput(msg)
		}

		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		return m, nil

	case UpdateMsg:
		m.applyView(m.orch.View())

		return m, m.waitForUpdate()

	case StatusMsg:
		m.status = msg.Status

		return m, nil

	case ErrorMsg:
		m.err = msg.Err

		return m, nil

	case tickMsg:
		m.status = m.sched.Status()
		m.view.State = m.orch.State()

		return m, pollStatus()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "r":
		return m, m.refresh()
	case "a":
		enabled := !m.status.AutoRefresh

		return m, m.schedulerAction(func() error {
			m.sched.SetAutoRefresh(enabled)

			return nil
		})
	case "t":
		enabled := !m.status.LiveTick

		return m, m.schedulerAction(func() error {
			m.sched.SetLiveTick(enabled)

			return nil
		})
	case "+", "=":
		interval := NextPreset(scheduler.Presets, m.status.Interval)

		return m, m.schedulerAction(func() error { return m.sched.SetInterval(interval) })
	case "-":
		interval := PrevPreset(scheduler.Presets, m.status.Interval)

		return m, m.schedulerAction(func() error { return m.sched.SetInterval(interval) })
	case "d":
		m.sideBySide = !m.sideBySide

		return m, nil
	case "s":
		m.editing = true
		m.symbolInput.Reset()
		m.symbolInput.Focus()

		return m, textinput.Blink
	}

	return m, nil
}

func (m Model) updateSymbolInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.symbolInput.Blur()

		return m, nil
	case "enter":
		symbol := strings.TrimSpace(m.symbolInput.Value())
		m.editing = false
		m.symbolInput.Blur()

		if symbol == "" {
			return m, nil
		}

		return m, m.switchSymbol(symbol)
	}

	var cmd tea.Cmd
	m.symbolInput, cmd = m.symbolInput.Update(msg)

	return m, cmd
}

func (m *Model) applyView(view market.View) {
	if current, err := m.view.Ticker.Take(); err == nil && current.Symbol == view.Symbol {
		m.previous = current
	} else if view.Symbol != m.view.Symbol {
		m.previous = types.Ticker{}
	}

	m.view = view
	m.tradesTable = UpdateTradeRows(m.tradesTable, view.Trades)
	m.err = nil
}

func (m Model) waitForUpdate() tea.Cmd {
	updates := m.updates

	return func() tea.Msg {
		<-updates

		return UpdateMsg{}
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		m.orch.RefreshAll(m.ctx)

		return nil
	}
}

func (m Model) switchSymbol(symbol string) tea.Cmd {
	return func() tea.Msg {
		if err := m.orch.SetSymbol(symbol); err != nil {
			return ErrorMsg{Err: err}
		}

		m.orch.RefreshAll(m.ctx)

		return UpdateMsg{}
	}
}

func (m Model) schedulerAction(action func() error) tea.Cmd {
	return func() tea.Msg {
		if err := action(); err != nil {
			return ErrorMsg{Err: err}
		}

		return StatusMsg{Status: m.sched.Status()}
	}
}

func pollStatus() tea.Cmd {
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	source := m.orch.SourceName()
	s.WriteString(TitleStyle.Render(fmt.Sprintf("marketboard · %s", m.view.Symbol)))
	s.WriteString(HelpStyle.Render(fmt.Sprintf("   %s via %s", m.view.State.Mode, source)))
	s.WriteString("\n")

	if reason, err := m.view.State.FallbackReason().Take(); err == nil {
		s.WriteString(BannerStyle.Render(reason))
		s.WriteString("\n")
	}

	if lastErr, err := m.view.State.LastError.Take(); err == nil {
		s.WriteString(ErrorStyle.Render("source error: " + lastErr))
		s.WriteString("\n")
	}

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	}

	s.WriteString("\n")

	if ticker, err := m.view.Ticker.Take(); err == nil {
		s.WriteString(RenderTicker(ticker, m.previous))
	} else {
		s.WriteString("Waiting for ticker...")
	}

	s.WriteString("\n\n")

	book := "Waiting for order book..."
	if b, err := m.view.Book.Take(); err == nil {
		if m.sideBySide {
			book = RenderDepthSideBySide(b, depthRows)
		} else {
			book = RenderDepth(b, depthRows)
		}
	}

	trades := "Waiting for trades..."
	if len(m.view.Trades) > 0 {
		trades = m.tradesTable.View()
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		PanelStyle.Render(book),
		PanelStyle.Render(trades),
	))
	s.WriteString("\n")

	s.WriteString(m.statusLine())
	s.WriteString("\n")

	if m.editing {
		s.WriteString(m.symbolInput.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("enter: switch | esc: cancel"))
	} else {
		s.WriteString(HelpStyle.Render("r: refresh | a: auto | +/-: interval | t: live tick | d: layout | s: symbol | q: quit"))
	}

	return s.String()
}

func (m Model) statusLine() string {
	auto := "off"
	if m.status.AutoRefresh {
		auto = "on"
	}

	tick := "off"
	if m.status.LiveTick {
		tick = "on"
	}

	updated := "never"
	if !m.view.State.LastUpdated.IsZero() {
		updated = m.view.State.LastUpdated.Format("15:04:05")
	}

	line := fmt.Sprintf("auto: %s every %s (%s) | live tick: %s | updated %s",
		auto, m.status.Interval, m.status.Scope, tick, updated)

	if m.view.State.Loading.Any() {
		line += " | loading"
	}

	return HelpStyle.Render(line)
}
