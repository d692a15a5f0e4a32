package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cmbsolver/tuitcptester/internal/engine"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.applyLayout()
		return m, nil

	case eventsMsg:
		m.appendEvents(m.tap.drain())
		return m, waitForEvents(m.tap)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.activeView == viewConnections {
				m.activeView = viewLogs
			} else {
				m.activeView = viewConnections
			}
			// The log panel grows while focused.
			m.applyLayout()
			return m, nil
		}
	}

	if m.activeView == viewConnections {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				inst := m.selected()
				if inst == nil {
					return m, nil
				}
				if inst.Status().Active() {
					return m, stopConn(inst)
				}
				return m, startConn(inst)
			case "s":
				inst := m.selected()
				if inst == nil {
					return m, nil
				}
				return m, m.sendFirst(inst)
			}
		}
		var cmd tea.Cmd
		m.connList, cmd = m.connList.Update(msg)
		return m, cmd
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "g":
			m.logViewport.GotoTop()
			return m, nil
		case "G":
			m.logViewport.GotoBottom()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

// applyLayout pushes the current geometry into the list and the viewport.
func (m *Model) applyLayout() {
	lay := m.layout()
	if lay.tooSmall {
		return
	}
	m.connList.SetSize(lay.listWidth-4, lay.listHeight)
	m.logViewport.Width = lay.vpWidth
	m.logViewport.Height = lay.vpHeight
}

// appendEvents folds drained tap lines into the log pane. The view keeps
// following the tail unless the user has scrolled away from it.
func (m *Model) appendEvents(events []string) {
	if len(events) == 0 {
		return
	}
	follow := m.logViewport.AtBottom()

	for _, ev := range events {
		m.logLines = append(m.logLines, strings.Split(ev, "\n")...)
	}
	if len(m.logLines) > maxLogLines {
		trimmed := make([]string, maxLogLines)
		copy(trimmed, m.logLines[len(m.logLines)-maxLogLines:])
		m.logLines = trimmed
	}

	m.logViewport.SetContent(strings.Join(m.logLines, "\n"))
	if follow {
		m.logViewport.GotoBottom()
	}
}

// startConn dials off the program loop so a slow connect never freezes the
// UI. Failures reach the log pane through the instance's error observer.
func startConn(inst *engine.Instance) tea.Cmd {
	return func() tea.Msg {
		_ = inst.Start()
		return nil
	}
}

func stopConn(inst *engine.Instance) tea.Cmd {
	return func() tea.Msg {
		inst.Stop()
		return nil
	}
}

// sendFirst fires the first scripted transaction outside the automatic
// schedule, matching what the send key promises in the footer.
func (m Model) sendFirst(inst *engine.Instance) tea.Cmd {
	txs := inst.Config().AutoTransactions
	if len(txs) == 0 {
		m.tap.push(fmt.Sprintf("%s [%s] no transactions configured", time.Now().Format(logTimeFormat), inst.Name()))
		return nil
	}
	tx := txs[0]
	return func() tea.Msg {
		_ = inst.SendManual(tx)
		return nil
	}
}
