// Command monitor is a terminal dashboard that tails the relay's event
// journal over its HTTP API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type eventRow struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
}

type recentResponse struct {
	Events []eventRow `json:"events"`
}

type statsResponse struct {
	Total         int            `json:"total"`
	BySeverity    map[string]int `json:"by_severity"`
	BufferUsed    int            `json:"buffer_used"`
	SQLiteEnabled bool           `json:"sqlite_enabled"`
}

type monitor struct {
	app     *tview.Application
	table   *tview.Table
	header  *tview.TextView
	footer  *tview.TextView
	client  *http.Client
	baseURL string
	paused  bool
}

func main() {
	baseURL := flag.String("addr", "http://localhost:8591", "relay base URL")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	m := &monitor{
		app:     tview.NewApplication(),
		table:   tview.NewTable().SetFixed(1, 0),
		header:  tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter),
		footer:  tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter),
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: *baseURL,
	}

	m.header.SetBackgroundColor(tcell.ColorDarkBlue)
	m.footer.SetBackgroundColor(tcell.ColorDarkBlue)
	m.footer.SetText("[yellow]p[white]:pause [yellow]r[white]:refresh [yellow]q[white]:quit")
	m.table.SetBorder(true).SetTitle(" Event Journal ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(m.header, 1, 0, false).
		AddItem(m.table, 0, 1, true).
		AddItem(m.footer, 1, 0, false)

	m.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			m.app.Stop()
			return nil
		case 'p', 'P':
			m.paused = !m.paused
			return nil
		case 'r', 'R':
			go m.refresh()
			return nil
		}
		return event
	})

	go m.poll(*interval)

	if err := m.app.SetRoot(flex, true).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "monitor:", err)
		os.Exit(1)
	}
}

func (m *monitor) poll(interval time.Duration) {
	m.refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !m.paused {
			m.refresh()
		}
	}
}

func (m *monitor) refresh() {
	var recent recentResponse
	if err := m.get("/api/v1/events/recent?limit=100", &recent); err != nil {
		m.app.QueueUpdateDraw(func() {
			m.header.SetText(fmt.Sprintf("[red]%s unreachable: %v", m.baseURL, err))
		})
		return
	}

	var stats statsResponse
	statsLine := ""
	if err := m.get("/api/v1/events/stats", &stats); err == nil {
		statsLine = fmt.Sprintf("[white]%s  [green]%d ok  [red]%d err  [yellow]%d warn  buffered %d",
			m.baseURL,
			stats.BySeverity["success"],
			stats.BySeverity["error"],
			stats.BySeverity["warning"],
			stats.BufferUsed,
		)
	}

	m.app.QueueUpdateDraw(func() {
		if statsLine != "" {
			m.header.SetText(statsLine)
		}
		m.render(recent.Events)
	})
}

func (m *monitor) render(events []eventRow) {
	m.table.Clear()
	for col, name := range []string{"TIME", "SEV", "CATEGORY", "SOURCE", "MESSAGE"} {
		m.table.SetCell(0, col, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	for i, e := range events {
		color := tcell.ColorWhite
		switch e.Severity {
		case "error":
			color = tcell.ColorRed
		case "warning":
			color = tcell.ColorYellow
		case "success":
			color = tcell.ColorGreen
		}

		row := i + 1
		m.table.SetCell(row, 0, tview.NewTableCell(e.Timestamp.Local().Format("15:04:05")).SetTextColor(color))
		m.table.SetCell(row, 1, tview.NewTableCell(e.Severity).SetTextColor(color))
		m.table.SetCell(row, 2, tview.NewTableCell(e.Category).SetTextColor(color))
		m.table.SetCell(row, 3, tview.NewTableCell(e.Source).SetTextColor(color))
		m.table.SetCell(row, 4, tview.NewTableCell(e.Message).SetTextColor(color).SetExpansion(1))
	}
}

func (m *monitor) get(path string, out any) error {
	resp, err := m.client.Get(m.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
