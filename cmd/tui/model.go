package tui

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cmbsolver/tuitcptester/internal/engine"
)

const (
	minWindowWidth  = 80
	minWindowHeight = 20

	defaultListWidth = 34
	minListWidth     = 24
	footerHeight     = 3

	// Oldest log lines are dropped past this point so a long session
	// does not grow the model without bound.
	maxLogLines = 2000
)

const (
	viewConnections = iota
	viewLogs
)

// Model is the bubbletea model. It owns no sockets; every row and panel is
// rendered from manager state and every action goes through an instance
// method.
type Model struct {
	mgr     *engine.Manager
	tap     *eventTap
	docPath string
	version string

	connList    list.Model
	logViewport viewport.Model
	logLines    []string

	activeView int
	width      int
	height     int
}

// connItem adapts an instance to a list row. It holds the instance pointer
// so the delegate renders live status instead of a snapshot.
type connItem struct {
	inst *engine.Instance
}

func (it connItem) Title() string       { return it.inst.Name() }
func (it connItem) Description() string { return "" }
func (it connItem) FilterValue() string { return it.inst.Name() }

func newModel(mgr *engine.Manager, tap *eventTap, docPath, version string) Model {
	insts := mgr.List()
	items := make([]list.Item, 0, len(insts))
	for _, inst := range insts {
		items = append(items, connItem{inst: inst})
	}

	l := list.New(items, connDelegate{}, defaultListWidth, 10)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)

	vp := viewport.New(10, 10)
	m := Model{
		mgr:      mgr,
		tap:      tap,
		docPath:  docPath,
		version:  version,
		connList: l,
		logLines: []string{fmt.Sprintf("loaded %d connections from %s", len(insts), docPath)},
	}
	vp.SetContent(m.logLines[0])
	m.logViewport = vp
	return m
}

func (m Model) Init() tea.Cmd {
	return waitForEvents(m.tap)
}

// selected returns the instance under the cursor, nil when the list is empty.
func (m Model) selected() *engine.Instance {
	it, ok := m.connList.SelectedItem().(connItem)
	if !ok {
		return nil
	}
	return it.inst
}

// eventTap collects instance events for the program loop. Pushes never
// block the engine's goroutines: lines buffer under the mutex and the
// channel only wakes the loop.
type eventTap struct {
	mu    sync.Mutex
	lines []string
	wake  chan struct{}
}

func newEventTap() *eventTap {
	return &eventTap{wake: make(chan struct{}, 1)}
}

func (t *eventTap) push(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
	t.notify()
}

// notify wakes the program loop without carrying a line. Status changes use
// this; the view re-reads instance state when it renders.
func (t *eventTap) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// drain returns and clears the buffered lines.
func (t *eventTap) drain() []string {
	t.mu.Lock()
	lines := t.lines
	t.lines = nil
	t.mu.Unlock()
	return lines
}

type eventsMsg struct{}

func waitForEvents(tap *eventTap) tea.Cmd {
	return func() tea.Msg {
		<-tap.wake
		return eventsMsg{}
	}
}
