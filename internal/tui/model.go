package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

// Port is the TUI-facing subset of the pipeline controller.
type Port interface {
	Search(ctx context.Context, raw string) service.SearchResponse
	Clear(ctx context.Context) service.ClearStatus
	Status() service.Lifecycle
}

// hit is one match of one query, flattened for navigation.
type hit struct {
	query string
	rank  int
	total int
	match domain.Match
}

type searchDoneMsg struct {
	raw  string
	resp service.SearchResponse
}

type clearDoneMsg struct{ status service.ClearStatus }

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	port     Port
	ctx      context.Context
	input    textinput.Model
	viewport viewport.Model
	hits     []hit
	summary  string
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, port Port, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question; separate several with ||"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	status := "Ready. Enter to search, up/down to browse, ctrl+x to clear the index."
	if port.Status().State == service.StateAbsent {
		status = "No index yet. Run `pdfrag ingest <file>` first."
	}
	return Model{port: port, ctx: ctx, input: ti, viewport: vp, summary: summary, status: status}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(raw string) tea.Cmd {
	return func() tea.Msg {
		return searchDoneMsg{raw: raw, resp: m.port.Search(m.ctx, raw)}
	}
}

func (m Model) clear() tea.Cmd {
	return func() tea.Msg { return clearDoneMsg{status: m.port.Clear(m.ctx)} }
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case searchDoneMsg:
		m.busy = false
		m.setResults(msg.resp)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case clearDoneMsg:
		m.busy = false
		m.status = msg.status.Message()
		if msg.status.Outcome == service.OutcomeCleared {
			m.hits, m.cursor = nil, 0
			m.viewport.SetContent(m.renderCurrent())
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			raw := m.input.Value()
			if m.busy {
				return m, nil
			}
			if strings.TrimSpace(raw) == "" {
				m.status = "Please enter a valid query."
				return m, nil
			}
			m.busy = true
			m.status = "Searching..."
			return m, m.search(raw)
		case "ctrl+x":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Clearing index..."
			return m, m.clear()
		case "down":
			if len(m.hits) > 0 {
				m.cursor = (m.cursor + 1) % len(m.hits)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.hits) > 0 {
				m.cursor = (m.cursor - 1 + len(m.hits)) % len(m.hits)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setResults(resp service.SearchResponse) {
	m.hits, m.cursor = nil, 0
	if resp.Outcome != service.OutcomeAnswered {
		m.status = "Error: " + firstLine(resp.Message())
		return
	}
	for _, res := range resp.Report.Results() {
		for i, match := range res.Matches {
			m.hits = append(m.hits, hit{query: res.Query, rank: i + 1, total: len(res.Matches), match: match})
		}
	}
	m.status = fmt.Sprintf("%d queries, %d matches", resp.Report.Len(), len(m.hits))
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("PDF Chat")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.hits) == 0 {
		return "No results yet."
	}
	h := m.hits[m.cursor]
	title := fmt.Sprintf("Query: %s\nMatch %d/%d  score=%.3f  [%d/%d]", h.query, h.rank, h.total, h.match.Score, m.cursor+1, len(m.hits))
	return title + "\n\n" + highlightBestSentence(h.match.Text(), h.query)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentences      = chunker.NewRegexpSplitter()
)

// highlightBestSentence renders the sentence sharing the most words with
// query in the highlight style.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	parts := sentences.Split(text)
	best := bestSentence(parts, query)
	for i := range parts {
		sent := strings.TrimSpace(parts[i])
		if i == best {
			sent = highlightStyle.Render(sent)
		}
		parts[i] = sent
	}
	return strings.Join(parts, " ")
}

// bestSentence returns the index of the sentence with the largest word
// overlap with query, or -1 when the query has no words.
func bestSentence(sentences []string, query string) int {
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return -1
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		score := 0
		for t := range toTokenSet(s) {
			if _, ok := qTokens[t]; ok {
				score++
			}
		}
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
