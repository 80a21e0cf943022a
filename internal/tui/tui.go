// Package tui is the interactive terminal front end: load CSV files, browse
// the schema and ask questions.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/assistant"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

const sidebarWidth = 38

// Deps are the collaborators the TUI drives.
type Deps struct {
	StoreID   string
	Catalog   *catalog.Catalog
	Ingestor  *ingest.Ingestor
	Assistant *assistant.Service // nil disables questions
	Logger    *slog.Logger
}

// Run starts the TUI and blocks until the user quits.
func Run(deps Deps) error {
	p := tea.NewProgram(
		initialModel(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}

type focus int

const (
	pathsFocus focus = iota
	questionFocus
	tablesFocus
)

type model struct {
	deps          Deps
	logger        *slog.Logger
	focus         focus
	pathsInput    textinput.Model
	questionInput textinput.Model
	tables        list.Model
	viewport      viewport.Model
	spinner       spinner.Model
	schema        catalog.SchemaMap
	rowCounts     map[string]int64
	answer        *assistant.Answer
	content       string
	status        string
	width         int
	height        int
	err           error
	busy          bool
	viewportReady bool
}

type tableItem struct {
	name    string
	columns []string
}

func (i tableItem) Title() string       { return i.name }
func (i tableItem) Description() string { return strings.Join(i.columns, ", ") }
func (i tableItem) FilterValue() string { return i.name }

type ingestMsg struct {
	result *ingest.Result
	err    error
}

type schemaMsg struct {
	schema    catalog.SchemaMap
	rowCounts map[string]int64
	err       error
}

type answerMsg struct {
	answer *assistant.Answer
	err    error
}

type detailMsg struct {
	detail *catalog.TableDetail
	err    error
}

func ingestFiles(deps Deps, paths []string) tea.Cmd {
	return func() tea.Msg {
		res, err := deps.Ingestor.Load(context.Background(), deps.StoreID, paths, ingest.LoadOptions{})
		return ingestMsg{result: res, err: err}
	}
}

func loadSchema(deps Deps) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		schema, err := deps.Catalog.Schema(ctx, deps.StoreID)
		if err != nil {
			return schemaMsg{err: err}
		}
		counts, err := deps.Catalog.RowCounts(ctx, deps.StoreID)
		return schemaMsg{schema: schema, rowCounts: counts, err: err}
	}
}

func askQuestion(deps Deps, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := deps.Assistant.Ask(context.Background(), deps.StoreID, question)
		return answerMsg{answer: ans, err: err}
	}
}

func describeTable(deps Deps, table string) tea.Cmd {
	return func() tea.Msg {
		detail, err := deps.Catalog.Describe(context.Background(), deps.StoreID, table)
		return detailMsg{detail: detail, err: err}
	}
}

func initialModel(deps Deps) model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pi := textinput.New()
	pi.Placeholder = "CSV paths or URLs, comma separated (e.g. data/patients.csv, data/visits.csv)"
	pi.Focus()
	pi.CharLimit = 2000
	pi.Width = 60

	qi := textinput.New()
	qi.Placeholder = "Ask a question about the data..."
	qi.CharLimit = 500
	qi.Width = 60

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)

	l := list.New([]list.Item{}, delegate, sidebarWidth, 10)
	l.Title = "Tables"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		Padding(0, 1)

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		deps:          deps,
		logger:        logger,
		focus:         pathsFocus,
		pathsInput:    pi,
		questionInput: qi,
		tables:        l,
		viewport:      vp,
		spinner:       sp,
		schema:        catalog.SchemaMap{},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, loadSchema(m.deps))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tables.SetSize(sidebarWidth, max(msg.Height-12-len(m.rowCounts), 4))

		// Header, two inputs, status and help take 10 lines
		m.viewport.Width = max(msg.Width-sidebarWidth-4, 20)
		m.viewport.Height = max(msg.Height-10, 3)
		m.viewportReady = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.err = fmt.Errorf("ingest failed: %w", msg.err)
			m.logger.Error("Ingestion failed", "error", msg.err, "paths", m.pathsInput.Value())
			// Tables written before the failure stay, so refresh anyway.
			return m, loadSchema(m.deps)
		}
		m.err = nil
		m.status = fmt.Sprintf("Loaded %d table(s) into %s", len(msg.result.Tables), msg.result.StoreID)
		if msg.result.Cached {
			m.status += " (unchanged)"
		}
		m.pathsInput.SetValue("")
		m.setContent(ingestMarkdown(msg.result))
		m.logger.Info("Ingestion completed", "store", msg.result.StoreID, "tables", len(msg.result.Tables), "cached", msg.result.Cached)
		return m, loadSchema(m.deps)

	case schemaMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to read schema: %w", msg.err)
			m.logger.Error("Schema read failed", "error", msg.err, "store", m.deps.StoreID)
			return m, nil
		}
		m.schema = msg.schema
		m.rowCounts = msg.rowCounts
		items := make([]list.Item, 0, len(msg.schema))
		for _, name := range msg.schema.Tables() {
			items = append(items, tableItem{name: name, columns: msg.schema[name]})
		}
		cmd := m.tables.SetItems(items)
		return m, cmd

	case answerMsg:
		m.busy = false
		if msg.answer != nil {
			m.answer = msg.answer
			m.setContent(answerMarkdown(msg.answer))
		}
		if msg.err != nil {
			m.err = fmt.Errorf("question failed: %w", msg.err)
			m.logger.Error("Question failed", "error", msg.err, "question", m.questionInput.Value())
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Answered in %d SQL attempt(s). Ctrl+Y copies the SQL.", msg.answer.Attempts)
		return m, nil

	case detailMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setContent(detailMarkdown(msg.detail))
		return m, nil
	}

	return m, nil
}

func (m model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyTab:
		m.setFocus((m.focus + 1) % 3)
		return m, textinput.Blink

	case tea.KeyShiftTab:
		m.setFocus((m.focus + 2) % 3)
		return m, textinput.Blink

	case tea.KeyCtrlY:
		if m.answer == nil || m.answer.SQL == "" {
			m.status = "No SQL to copy yet"
			return m, nil
		}
		if err := clipboard.WriteAll(m.answer.SQL); err != nil {
			m.err = fmt.Errorf("copy failed: %w", err)
			return m, nil
		}
		m.status = "Copied SQL to clipboard"
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		return m.submit()
	}

	var cmd tea.Cmd
	switch m.focus {
	case pathsFocus:
		m.pathsInput, cmd = m.pathsInput.Update(msg)
	case questionFocus:
		m.questionInput, cmd = m.questionInput.Update(msg)
	case tablesFocus:
		m.tables, cmd = m.tables.Update(msg)
	}
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch m.focus {
	case pathsFocus:
		paths := splitPaths(m.pathsInput.Value())
		if len(paths) == 0 {
			m.err = store.ErrInput("enter at least one CSV path")
			return m, nil
		}
		m.busy = true
		m.err = nil
		m.status = fmt.Sprintf("Loading %d file(s)...", len(paths))
		return m, tea.Batch(m.spinner.Tick, ingestFiles(m.deps, paths))

	case questionFocus:
		question := strings.TrimSpace(m.questionInput.Value())
		if question == "" {
			return m, nil
		}
		if m.deps.Assistant == nil {
			m.err = fmt.Errorf("question answering not available: ANTHROPIC_API_KEY not set")
			return m, nil
		}
		if len(m.schema) == 0 {
			m.err = store.ErrInput("no tables loaded; ingest some CSV files first")
			return m, nil
		}
		m.busy = true
		m.err = nil
		m.status = "Thinking..."
		return m, tea.Batch(m.spinner.Tick, askQuestion(m.deps, question))

	case tablesFocus:
		if item, ok := m.tables.SelectedItem().(tableItem); ok {
			return m, describeTable(m.deps, item.name)
		}
	}
	return m, nil
}

func (m *model) setFocus(f focus) {
	m.focus = f
	m.pathsInput.Blur()
	m.questionInput.Blur()
	switch f {
	case pathsFocus:
		m.pathsInput.Focus()
	case questionFocus:
		m.questionInput.Focus()
	}
}

func (m *model) setContent(markdown string) {
	m.content = markdown
	m.refreshViewport()
	m.viewport.GotoTop()
}

func (m *model) refreshViewport() {
	if m.content == "" {
		return
	}
	rendered, err := renderMarkdown(m.content, m.viewport.Width)
	if err != nil {
		m.logger.Warn("Markdown rendering failed", "error", err)
		rendered = m.content
	}
	m.viewport.SetContent(rendered)
}

// splitPaths splits a comma separated list, dropping blank entries.
func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func (m model) View() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62"))
	inputStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	focusedInput := inputStyle.BorderForeground(lipgloss.Color("62"))

	pathsStyle, questionStyle := inputStyle, inputStyle
	switch m.focus {
	case pathsFocus:
		pathsStyle = focusedInput
	case questionFocus:
		questionStyle = focusedInput
	}

	var body strings.Builder
	body.WriteString(pathsStyle.Render(m.pathsInput.View()))
	body.WriteString("\n")
	body.WriteString(questionStyle.Render(m.questionInput.View()))
	body.WriteString("\n")
	if m.viewportReady {
		body.WriteString(m.viewport.View())
	} else if m.content != "" {
		body.WriteString(m.content)
	}

	var side strings.Builder
	if len(m.schema) == 0 {
		side.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("No tables loaded yet"))
		side.WriteString("\n")
	} else {
		side.WriteString(m.tables.View())
		side.WriteString("\n\n")
		side.WriteString(lipgloss.NewStyle().Bold(true).Render("Rows"))
		side.WriteString("\n")
		side.WriteString(rowCountBars(m.rowCounts, 12, 14))
	}
	sideStyle := lipgloss.NewStyle().
		Width(sidebarWidth).
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(lipgloss.Color("240")).
		PaddingRight(1)

	var b strings.Builder
	b.WriteString(headerStyle.Render("UK Biobank Explorer"))
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("  store: " + m.deps.StoreID))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sideStyle.Render(side.String()), " ", body.String()))
	b.WriteString("\n")

	if m.busy {
		b.WriteString(m.spinner.View() + " ")
	}
	if m.status != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(m.status))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	help := "Tab: Switch focus | Enter: Load/Ask/Describe | PgUp/PgDn: Scroll | Ctrl+Y: Copy SQL | Esc/Ctrl+C: Quit"
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(help))
	return b.String()
}
