package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cmbsolver/tuitcptester/internal/wire"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

type connDelegate struct{}

func (d connDelegate) Height() int                               { return 1 }
func (d connDelegate) Spacing() int                              { return 0 }
func (d connDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d connDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	it, ok := listItem.(connItem)
	if !ok {
		return
	}

	label := fmt.Sprintf("%s (%s)", it.inst.Name(), it.inst.Config().Role)
	if max := m.Width() - 4; max > 3 && len(label) > max {
		label = label[:max-1] + "…"
	}

	dot := lipgloss.NewStyle().Foreground(statusColor(it.inst.Status())).Render("●")
	if index == m.Index() {
		fmt.Fprint(w, "> "+dot+" "+styleSelected.Render(label))
	} else {
		fmt.Fprint(w, "  "+dot+" "+styleRow.Render(label))
	}
}

// layoutDims is the shared geometry for Update (component sizing) and View
// (panel sizing); computing it once keeps the two from drifting apart.
type layoutDims struct {
	windowWidth   int
	windowHeight  int
	availHeight   int
	listWidth     int
	listHeight    int
	rightWidth    int
	detailsHeight int
	logsHeight    int
	vpWidth       int
	vpHeight      int
	tooSmall      bool
}

func (m Model) layout() layoutDims {
	lay := layoutDims{
		windowWidth:  m.width - 4,
		windowHeight: m.height - 4,
	}
	if lay.windowWidth < minWindowWidth || lay.windowHeight < minWindowHeight {
		lay.tooSmall = true
		return lay
	}

	// One line of app title plus the bordered footer.
	lay.availHeight = lay.windowHeight - 1 - footerHeight

	lay.listWidth = defaultListWidth
	if lay.listWidth > lay.windowWidth/3 {
		lay.listWidth = lay.windowWidth / 3
	}
	if lay.listWidth < minListWidth {
		lay.listWidth = minListWidth
	}
	lay.rightWidth = lay.windowWidth - lay.listWidth

	// Panel chrome is 2 rows of border plus title and title margin.
	lay.listHeight = lay.availHeight - 4

	if m.activeView == viewLogs {
		lay.logsHeight = lay.availHeight * 70 / 100
	} else {
		lay.logsHeight = lay.availHeight * 55 / 100
	}
	lay.detailsHeight = lay.availHeight - lay.logsHeight
	if lay.detailsHeight < 10 {
		lay.detailsHeight = 10
		lay.logsHeight = lay.availHeight - lay.detailsHeight
	}

	lay.vpWidth = lay.rightWidth - 5 // border, padding and the scrollbar column
	lay.vpHeight = lay.logsHeight - 4
	if lay.vpHeight < 2 {
		lay.vpHeight = 2
	}
	return lay
}

func (m Model) View() string {
	lay := m.layout()
	if lay.tooSmall {
		return styleScreenTooSmall.
			Width(m.width).
			Height(m.height).
			Render("Terminal window is too small.\nPlease resize.")
	}

	appTitle := styleAppTitle.Width(lay.windowWidth).Render("tuitcptester " + m.version)

	// Connections panel.
	m.connList.SetSize(lay.listWidth-4, lay.listHeight)
	connBorder := colorSubtext
	if m.activeView == viewConnections {
		connBorder = colorAccent
	}
	connTitle := styleTitle.MarginBottom(1).Render("Connections")
	connPanel := stylePanel.
		BorderForeground(connBorder).
		Width(lay.listWidth - 2).
		Height(lay.availHeight - 2).
		Render(connTitle + "\n" + m.connList.View())

	// Details panel. Its border tracks the selected connection's status.
	detailsBorder := colorSubtext
	if inst := m.selected(); inst != nil {
		detailsBorder = statusColor(inst.Status())
	}
	detailsTitle := styleTitle.MarginBottom(1).Render("Details")
	details := renderDetails(m, lay.rightWidth-4, lay.detailsHeight-4)
	detailsPanel := stylePanel.
		BorderForeground(detailsBorder).
		Width(lay.rightWidth - 2).
		Height(lay.detailsHeight - 2).
		Render(detailsTitle + "\n" + details)

	// Log panel with a scrollbar column.
	m.logViewport.Width = lay.vpWidth
	m.logViewport.Height = lay.vpHeight
	logsBorder := colorSubtext
	if m.activeView == viewLogs {
		logsBorder = colorAccent
	}
	logsTitle := styleTitle.MarginBottom(1).Render("Logs")
	logsBody := lipgloss.JoinHorizontal(lipgloss.Top,
		m.logViewport.View(),
		renderScrollbar(m.logViewport, lay.vpHeight),
	)
	logsPanel := stylePanel.
		BorderForeground(logsBorder).
		Width(lay.rightWidth - 2).
		Height(lay.logsHeight - 2).
		Render(logsTitle + "\n" + logsBody)

	rightColumn := lipgloss.JoinVertical(lipgloss.Top, detailsPanel, logsPanel)
	topArea := lipgloss.JoinHorizontal(lipgloss.Top, connPanel, rightColumn)
	footer := m.renderFooter(lay.windowWidth)

	return styleWindow.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Top, appTitle, topArea, footer))
}

// renderDetails fills exactly width x height with the selected connection's
// configuration, live status and transaction schedule. The arrow marks the
// transaction the scheduler fires next.
func renderDetails(m Model, width, height int) string {
	inst := m.selected()
	if inst == nil {
		return styleSubtext.Render("No connection selected")
	}
	cfg := inst.Config()

	contentWidth := width
	if contentWidth < 0 {
		contentWidth = 0
	}
	labelWidth := 12
	valueMax := contentWidth - labelWidth - 1
	if valueMax < 5 {
		valueMax = 5
	}

	row := func(label, value string) string {
		if len(value) > valueMax {
			value = value[:valueMax-1] + "…"
		}
		return lipgloss.JoinHorizontal(lipgloss.Top,
			styleLabel.Render(label),
			styleValue.Render(value),
		)
	}

	st := inst.Status()
	rows := []string{
		row("Name:", inst.Name()),
		row("Role:", string(cfg.Role)),
		row("Endpoint:", cfg.Address()),
	}
	if cfg.Role == types.RoleProxy {
		rows = append(rows, row("Remote:", cfg.RemoteAddress()))
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
		styleLabel.Render("Status:"),
		lipgloss.NewStyle().Foreground(statusColor(st)).Render(st.String()),
	))
	if addr := inst.LocalAddr(); addr != nil {
		rows = append(rows, row("Local:", addr.String()))
	}
	if cfg.IntervalMs != nil {
		iv := fmt.Sprintf("%dms", *cfg.IntervalMs)
		if cfg.JitterMinMs != nil {
			iv += fmt.Sprintf(" +%d..%dms jitter", *cfg.JitterMinMs, *cfg.JitterMaxMs)
		}
		rows = append(rows, row("Interval:", iv))
	}
	if cfg.DumpFilePath != "" {
		rows = append(rows, row("Dump file:", cfg.DumpFilePath))
	}
	if lastErr := inst.LastError(); lastErr != "" {
		if len(lastErr) > valueMax {
			lastErr = lastErr[:valueMax-1] + "…"
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			styleLabel.Render("Last error:"),
			lipgloss.NewStyle().Foreground(colorBad).Render(lastErr),
		))
	}

	header := lipgloss.JoinVertical(lipgloss.Left, rows...)
	txHeader := styleTxHeader.Render("Transactions")

	var txContent string
	txs := cfg.AutoTransactions
	if len(txs) == 0 {
		txContent = styleSubtext.Render("No transactions configured.")
	} else {
		// Header rows plus the two lines the margined tx header takes.
		avail := height - len(rows) - 2
		if avail < 1 {
			avail = 1
		}
		cursor := inst.Cursor()
		txLines := make([]string, 0, len(txs))
		for i, tx := range txs {
			if len(txLines) >= avail {
				txLines = append(txLines, styleSubtext.Render(fmt.Sprintf("… and %d more", len(txs)-i)))
				break
			}
			marker := "  "
			if i == cursor {
				marker = styleSelected.Render("→ ")
			}
			line := fmt.Sprintf("%d. [%s] %s", i+1, tx.Encoding, txPreview(tx))
			if contentWidth > 5 && len(line)+2 > contentWidth {
				line = line[:contentWidth-3] + "…"
			}
			txLines = append(txLines, marker+line)
		}
		txContent = strings.Join(txLines, "\n")
	}

	content := lipgloss.JoinVertical(lipgloss.Left, header, txHeader, txContent)

	// Pad or trim to the exact panel height so the border never wanders.
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// txPreview is the one-line form of a transaction payload: control
// characters escaped, append flags spelled out, long payloads cut.
func txPreview(tx types.Transaction) string {
	s := wire.EscapeControl(tx.Data)
	if len(s) > 32 {
		s = s[:31] + "…"
	}
	out := `"` + s + `"`
	if tx.AppendReturn {
		out += " +cr"
	}
	if tx.AppendNewline {
		out += " +lf"
	}
	return out
}

func renderScrollbar(vp viewport.Model, height int) string {
	total := vp.TotalLineCount()
	visible := vp.VisibleLineCount()
	if total <= visible || height < 1 {
		return ""
	}

	thumb := int(float64(height-1) * vp.ScrollPercent())
	if thumb < 0 {
		thumb = 0
	}
	if thumb > height-1 {
		thumb = height - 1
	}

	rows := make([]string, height)
	for i := range rows {
		if i == thumb {
			rows[i] = styleScrollThumb.Render("█")
		} else {
			rows[i] = styleScrollTrack.Render("│")
		}
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderFooter(width int) string {
	sep := styleSubtext.Render(" • ")

	var hints string
	if m.activeView == viewConnections {
		hints = lipgloss.JoinHorizontal(lipgloss.Center,
			styleKey.Render("↑/↓"), styleSubtext.Render(" select"), sep,
			styleKey.Render("enter"), styleSubtext.Render(" start/stop"), sep,
			styleKey.Render("s"), styleSubtext.Render(" send"), sep,
			styleKey.Render("tab"), styleSubtext.Render(" logs"), sep,
			styleKey.Render("q"), styleSubtext.Render(" quit"),
		)
	} else {
		hints = lipgloss.JoinHorizontal(lipgloss.Center,
			styleKey.Render("↑/↓"), styleSubtext.Render(" scroll"), sep,
			styleKey.Render("g/G"), styleSubtext.Render(" top/bottom"), sep,
			styleKey.Render("tab"), styleSubtext.Render(" connections"), sep,
			styleKey.Render("q"), styleSubtext.Render(" quit"),
		)
	}

	return styleFooter.Width(width - 2).Render(hints)
}
