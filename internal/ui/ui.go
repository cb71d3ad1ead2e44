package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qbx/internal/formatter"
	"github.com/desertthunder/qbx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MenuView ViewState = iota
	SearchView
	QueryView
	ResultView
)

// maxShownErrors caps the error lines listed under a result summary.
const maxShownErrors = 3

// QueryRunner starts queries. [*tasks.Engine] satisfies it.
type QueryRunner interface {
	Favorites(ctx context.Context, kind tasks.QueryKind) (*tasks.Results, error)
	Search(ctx context.Context, kind tasks.QueryKind, text string) (*tasks.Results, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	runner  QueryRunner
	updates <-chan tasks.ProgressUpdate
	width   int
	height  int

	menu  list.Model
	input textinput.Model
	spin  spinner.Model
	bar   progress.Model
	songs list.Model

	kind     tasks.QueryKind
	text     string
	seq      int
	cancel   context.CancelFunc
	progress tasks.ProgressUpdate
	results  *tasks.Results
	err      error
	notice   string

	help help.Model
	keys keyMap
}

// NewModel creates a TUI model. updates must be the channel behind the runner's [tasks.ChannelListener].
func NewModel(ctx context.Context, runner QueryRunner, updates <-chan tasks.ProgressUpdate) *Model {
	menu := list.New(kindItems(), list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Qobuz"

	input := textinput.New()
	input.Placeholder = "artist, album or song title"
	input.CharLimit = 200

	m := &Model{
		ctx:     ctx,
		view:    MenuView,
		runner:  runner,
		updates: updates,
		menu:    menu,
		input:   input,
		spin:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient()),
		songs:   list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	m.resize(80, 24)
	return m
}

// Init starts listening for progress updates.
func (m *Model) Init() tea.Cmd {
	return m.waitForProgress()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case MenuView:
			return m.handleMenuKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		case QueryView:
			return m.handleQueryKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != QueryView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		if m.view == QueryView && !update.Done() {
			m.progress = update
		}
		return m, m.waitForProgress()

	case MsgQueryFinished:
		done := msg.data.(queryFinished)
		if done.seq != m.seq {
			return m, nil
		}
		m.cancel = nil
		m.results = done.results
		m.err = done.err
		m.notice = ""
		if done.results != nil {
			m.songs.SetItems(songItems(done.results.Songs.Sorted()))
			m.songs.Title = formatter.Title(done.results)
			m.songs.ResetSelected()
		}
		m.view = ResultView
		return m, nil

	case MsgExported:
		done := msg.data.(exported)
		if done.err != nil {
			m.notice = styles.err.Render(fmt.Sprintf("Export failed: %v", done.err))
		} else {
			m.notice = styles.ok.Render("Saved " + done.path)
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case MenuView:
		return m.renderMenu()
	case SearchView:
		return m.renderSearch()
	case QueryView:
		return m.renderQuery()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.menu.SetSize(width-4, height-8)
	m.songs.SetSize(width-4, height-10)
	m.input.Width = max(width-8, 20)
	m.bar.Width = min(max(width-8, 10), 60)
}

func (m *Model) handleMenuKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.menu.FilterState() == list.Filtering {
		return m.updateComponents(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		selected, ok := m.menu.SelectedItem().(kindItem)
		if !ok {
			return m, nil
		}
		if selected.kind.IsSearch() {
			m.kind = selected.kind
			m.view = SearchView
			m.input.Reset()
			return m, m.input.Focus()
		}
		return m, m.startQuery(selected.kind, "")
	}

	return m.updateComponents(msg)
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.input.Blur()
		m.view = MenuView
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Blur()
		return m, m.startQuery(m.kind, text)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleQueryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.stopQuery()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.stopQuery()
		m.view = MenuView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.songs.FilterState() == list.Filtering {
		return m.updateComponents(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = MenuView
		m.results = nil
		m.err = nil
		m.notice = ""
		return m, nil
	case key.Matches(msg, m.keys.export):
		if m.results == nil || len(m.results.Songs) == 0 {
			return m, nil
		}
		return m, m.export()
	}

	return m.updateComponents(msg)
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case MenuView:
		m.menu, cmd = m.menu.Update(msg)
	case SearchView:
		m.input, cmd = m.input.Update(msg)
	case ResultView:
		m.songs, cmd = m.songs.Update(msg)
	}
	return m, cmd
}

// startQuery runs kind on its own cancelable context. Only the latest query's result is shown.
func (m *Model) startQuery(kind tasks.QueryKind, text string) tea.Cmd {
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.kind = kind
	m.text = text
	m.progress = tasks.ProgressUpdate{}
	m.results = nil
	m.err = nil
	m.view = QueryView

	runner := m.runner
	run := func() tea.Msg {
		defer cancel()
		var (
			res *tasks.Results
			err error
		)
		if kind.IsSearch() {
			res, err = runner.Search(ctx, kind, text)
		} else {
			res, err = runner.Favorites(ctx, kind)
		}
		return queryFinishedMsg(seq, res, err)
	}
	return tea.Batch(run, m.spin.Tick)
}

// stopQuery cancels the running query and discards its result.
func (m *Model) stopQuery() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.seq++
}

func (m *Model) waitForProgress() tea.Cmd {
	updates := m.updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) export() tea.Cmd {
	res := m.results
	return func() tea.Msg {
		path, err := formatter.WriteExport(formatter.FormatMarkdown, res, "")
		return exportedMsg(path, err)
	}
}

func (m *Model) queryTitle() string {
	title := kindItem{kind: m.kind}.Title()
	if m.text != "" {
		title = fmt.Sprintf("%s %q", title, m.text)
	}
	return title
}

func (m *Model) renderMenu() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.menu.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSearch() string {
	title := styles.title.Render(kindItem{kind: m.kind}.Title())
	searchKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search"))
	quitKey := key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
	helpView := m.help.ShortHelpView([]key.Binding{searchKey, m.keys.back, quitKey})
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.input.View(), helpView)
}

func (m *Model) renderQuery() string {
	title := styles.title.Render(m.queryTitle())

	var phase string
	switch m.progress.Phase {
	case tasks.PhaseCollectArtists:
		phase = "Collecting artists"
	case tasks.PhaseCollectAlbums:
		phase = "Collecting albums"
	case tasks.PhaseCollectSongs:
		phase = "Collecting songs"
	case tasks.PhaseCollectCovers:
		phase = "Downloading covers"
	default:
		phase = "Finishing"
	}

	percent := 0.0
	if m.progress.Total > 0 {
		percent = float64(m.progress.Step) / float64(m.progress.Total)
	}

	message := m.progress.Message
	if message == "" {
		message = "Waiting for the server..."
	}

	cancelKey := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	helpView := m.help.ShortHelpView([]key.Binding{cancelKey, m.keys.quit})

	return fmt.Sprintf("%s\n%s %s\n%s\n%s\n\n%s",
		title, m.spin.View(), phase, m.bar.ViewAs(percent), styles.help.Render(message), helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.export, m.keys.quit})

	if m.results == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Query failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	var summary string
	switch m.results.Outcome {
	case tasks.OutcomeSongs:
		summary = styles.ok.Render("✓ " + formatter.Summary(m.results))
	case tasks.OutcomeNoMatch:
		summary = styles.warn.Render(formatter.Summary(m.results))
	default:
		summary = styles.err.Render(formatter.Summary(m.results))
	}

	var b strings.Builder
	b.WriteString(summary)
	if n := len(m.results.Errors); n > 0 && m.results.Outcome == tasks.OutcomeSongs {
		for _, line := range m.results.Errors[:min(n, maxShownErrors)] {
			b.WriteString("\n  • " + styles.warn.Render(line))
		}
		if n > maxShownErrors {
			b.WriteString(fmt.Sprintf("\n  • %s", styles.warn.Render(fmt.Sprintf("and %d more", n-maxShownErrors))))
		}
	}
	if len(m.results.Songs) > 0 {
		b.WriteString("\n\n" + m.songs.View())
	}
	if m.notice != "" {
		b.WriteString("\n" + m.notice)
	}
	b.WriteString("\n\n" + helpView)
	return b.String()
}
