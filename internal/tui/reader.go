// ABOUTME: Full-screen reader: feed list, item list and a scrollable item view
// ABOUTME: Every user intent is sent to the app controller as an event from a tea.Cmd
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/content"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/timeutil"
)

// Screen is the reader's current page.
type Screen int

const (
	ScreenFeeds Screen = iota
	ScreenItems
	ScreenItem
)

const defaultWidth = 80

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	Back      key.Binding
	Quit      key.Binding
	Reload    key.Binding
	ReloadAll key.Binding
	Toggle    key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:      key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "back")),
	Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	ReloadAll: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload all")),
	Toggle:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "toggle unread")),
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	unreadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	faintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Messages delivered to the reader.
type (
	updateMsg struct {
		event  app.Event
		update *app.Update
		err    error
	}
	statusMsg string
	errorMsg  string
)

// Controller is the subset of app.Controller the reader drives.
type Controller interface {
	Feeds() []models.Feed
	Handle(ctx context.Context, ev app.Event) (*app.Update, error)
}

// ReaderModel is the bubbletea model for browsing feeds.
type ReaderModel struct {
	ctx        context.Context
	ctrl       Controller
	feeds      []models.Feed
	feed       *models.Feed
	item       *models.Item
	screen     Screen
	feedCursor int
	itemCursor int
	viewport   viewport.Model
	spinner    spinner.Model
	width      int
	height     int
	busy       bool
	status     string
	err        string
	now        func() time.Time
}

// NewReaderModel returns a reader showing the controller's current feeds.
func NewReaderModel(ctx context.Context, ctrl Controller) ReaderModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return ReaderModel{
		ctx:      ctx,
		ctrl:     ctrl,
		feeds:    ctrl.Feeds(),
		screen:   ScreenFeeds,
		viewport: viewport.New(defaultWidth, 20),
		spinner:  sp,
		width:    defaultWidth,
		height:   24,
		now:      time.Now,
	}
}

// Screen reports which page is showing.
func (m ReaderModel) Screen() Screen { return m.screen }

// Init implements tea.Model.
func (m ReaderModel) Init() tea.Cmd {
	return nil
}

// send runs ev through the controller off the UI goroutine.
func (m ReaderModel) send(ev app.Event) (ReaderModel, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.err = ""
	ctx, ctrl := m.ctx, m.ctrl
	run := func() tea.Msg {
		update, err := ctrl.Handle(ctx, ev)
		return updateMsg{event: ev, update: update, err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// Update implements tea.Model.
func (m ReaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		if m.item != nil {
			m.viewport.SetContent(content.Render(content.Document(m.item), m.width))
		}
		return m, nil
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case errorMsg:
		m.err = string(msg)
		return m, nil
	case updateMsg:
		return m.applyUpdate(msg), nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m ReaderModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}

	if key.Matches(msg, keys.Back) {
		switch m.screen {
		case ScreenFeeds:
			return m, tea.Quit
		case ScreenItems:
			m.screen = ScreenFeeds
			m.feed = nil
		case ScreenItem:
			m.screen = ScreenItems
			m.item = nil
		}
		return m, nil
	}

	if key.Matches(msg, keys.ReloadAll) {
		return m.send(app.ReloadAll{})
	}

	switch m.screen {
	case ScreenFeeds:
		switch {
		case key.Matches(msg, keys.Up):
			m.feedCursor = max(m.feedCursor-1, 0)
		case key.Matches(msg, keys.Down):
			m.feedCursor = min(m.feedCursor+1, max(len(m.feeds)-1, 0))
		case key.Matches(msg, keys.Open):
			if len(m.feeds) > 0 {
				return m.send(app.OpenFeed{Feed: m.feedCursor})
			}
		case key.Matches(msg, keys.Reload):
			if len(m.feeds) > 0 {
				return m.send(app.ReloadFeed{Feed: m.feedCursor})
			}
		}
	case ScreenItems:
		n := 0
		if m.feed != nil {
			n = len(m.feed.Items)
		}
		switch {
		case key.Matches(msg, keys.Up):
			m.itemCursor = max(m.itemCursor-1, 0)
		case key.Matches(msg, keys.Down):
			m.itemCursor = min(m.itemCursor+1, max(n-1, 0))
		case key.Matches(msg, keys.Open):
			if n > 0 {
				return m.send(app.OpenItem{Feed: m.feedCursor, Item: m.itemCursor})
			}
		case key.Matches(msg, keys.Toggle):
			if n > 0 {
				return m.send(app.ToggleUnread{Feed: m.feedCursor, Item: m.itemCursor})
			}
		case key.Matches(msg, keys.Reload):
			return m.send(app.ReloadFeed{Feed: m.feedCursor})
		}
	case ScreenItem:
		switch {
		case key.Matches(msg, keys.Toggle):
			return m.send(app.ToggleUnread{Feed: m.feedCursor, Item: m.itemCursor})
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m ReaderModel) applyUpdate(msg updateMsg) ReaderModel {
	m.busy = false
	if msg.err != nil {
		m.err = msg.err.Error()
	}
	if msg.update == nil {
		return m
	}
	m.feeds = msg.update.Feeds
	m.feedCursor = min(m.feedCursor, max(len(m.feeds)-1, 0))

	switch msg.event.(type) {
	case app.OpenFeed:
		if msg.update.Feed != nil {
			m.feed = msg.update.Feed
			m.itemCursor = 0
			m.screen = ScreenItems
		}
	case app.OpenItem:
		if msg.update.Item != nil {
			m.feed = msg.update.Feed
			m.item = msg.update.Item
			m.screen = ScreenItem
			m.viewport.SetContent(content.Render(content.Document(m.item), m.width))
			m.viewport.GotoTop()
		}
	case app.ToggleUnread, app.ReloadFeed:
		if m.feed != nil && msg.update.Feed != nil {
			m.feed = msg.update.Feed
		}
	case app.ReloadAll:
		if m.feed != nil && m.feedCursor < len(m.feeds) {
			feed := m.feeds[m.feedCursor]
			m.feed = &feed
		}
	}

	if m.feed != nil {
		m.itemCursor = min(m.itemCursor, max(len(m.feed.Items)-1, 0))
		if m.screen == ScreenItem && m.item != nil && m.itemCursor < len(m.feed.Items) {
			item := m.feed.Items[m.itemCursor]
			m.item = &item
		}
	}
	return m
}

// View implements tea.Model.
func (m ReaderModel) View() string {
	var b strings.Builder
	switch m.screen {
	case ScreenFeeds:
		b.WriteString(headerStyle.Render("skim"))
		b.WriteString("\n\n")
		m.writeFeeds(&b)
	case ScreenItems:
		b.WriteString(headerStyle.Render(m.feed.DisplayTitle()))
		b.WriteString("\n\n")
		m.writeItems(&b)
	case ScreenItem:
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

// window returns the visible row range keeping cursor on screen.
func (m ReaderModel) window(cursor, n int) (int, int) {
	rows := max(m.height-4, 1)
	start := 0
	if cursor >= rows {
		start = cursor - rows + 1
	}
	return start, min(start+rows, n)
}

func (m ReaderModel) writeFeeds(b *strings.Builder) {
	if len(m.feeds) == 0 {
		b.WriteString(faintStyle.Render("No feeds."))
		b.WriteString("\n")
		return
	}
	start, end := m.window(m.feedCursor, len(m.feeds))
	for i := start; i < end; i++ {
		f := &m.feeds[i]
		line := fmt.Sprintf("%3d/%-3d %s", f.UnreadCount(), len(f.Items), f.DisplayTitle())
		if f.LastError != nil {
			line += " " + failStyle.Render("!")
		}
		b.WriteString(m.row(i == m.feedCursor, line))
	}
}

func (m ReaderModel) writeItems(b *strings.Builder) {
	if len(m.feed.Items) == 0 {
		b.WriteString(faintStyle.Render("No items. Press r to reload."))
		b.WriteString("\n")
		return
	}
	now := m.now()
	start, end := m.window(m.itemCursor, len(m.feed.Items))
	for i := start; i < end; i++ {
		item := &m.feed.Items[i]
		marker := " "
		if item.Unread {
			marker = unreadStyle.Render("●")
		}
		when := ""
		if item.PublishedAt != nil {
			when = timeutil.Relative(*item.PublishedAt, now)
		}
		title := item.Title
		if title == "" {
			title = "(untitled)"
		}
		b.WriteString(m.row(i == m.itemCursor, fmt.Sprintf("%s %9s  %s", marker, when, title)))
	}
}

func (m ReaderModel) row(selected bool, line string) string {
	if selected {
		return selectedStyle.Render("> "+line) + "\n"
	}
	return "  " + line + "\n"
}

func (m ReaderModel) footer() string {
	var parts []string
	if m.busy {
		parts = append(parts, m.spinner.View())
	}
	if m.err != "" {
		parts = append(parts, failStyle.Render(m.err))
	} else if m.status != "" {
		parts = append(parts, m.status)
	}
	help := "enter open · r reload · R reload all · u unread · q back"
	return "\n" + faintStyle.Render(help) + "\n" + strings.Join(parts, " ")
}

// ProgramView forwards controller messages to a running program.
type ProgramView struct {
	Program *tea.Program
}

// Status implements app.View.
func (v ProgramView) Status(msg string) { v.Program.Send(statusMsg(msg)) }

// Error implements app.View.
func (v ProgramView) Error(msg string) { v.Program.Send(errorMsg(msg)) }

// RunReader runs the reader until the user quits.
func RunReader(ctx context.Context, ctrl *app.Controller) error {
	p := tea.NewProgram(NewReaderModel(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	ctrl.SetView(ProgramView{Program: p})
	defer ctrl.SetView(nil)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run reader: %w", err)
	}
	return nil
}
