// book-watcher renders the active proposal book in the terminal,
// polling the API at a fixed interval.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/gridwatt/energytrade/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type proposalsResponse struct {
	Proposals []domain.Proposal `json:"proposals"`
}

type tickMsg time.Time

type fetchedMsg struct {
	proposals []domain.Proposal
	err       error
}

type model struct {
	client    *resty.Client
	interval  time.Duration
	proposals []domain.Proposal
	lastErr   error
	fetchedAt time.Time
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetch() tea.Msg {
	var out proposalsResponse
	resp, err := m.client.R().SetResult(&out).Get("/api/proposals/")
	if err != nil {
		return fetchedMsg{err: err}
	}
	if resp.IsError() {
		return fetchedMsg{err: fmt.Errorf("http %d", resp.StatusCode())}
	}
	return fetchedMsg{proposals: out.Proposals}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case fetchedMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.proposals = msg.proposals
			m.fetchedAt = time.Now()
		}
	}
	return m, nil
}

func (m model) View() string {
	s := headerStyle.Render("ACTIVE ENERGY TRADE PROPOSALS") + "\n\n"

	s += rowStyle.Render(fmt.Sprintf("%-6s %-44s %12s %12s %12s",
		"ID", "PROPOSER", "ENERGY", "UNIT PRICE", "DURATION")) + "\n"
	if len(m.proposals) == 0 {
		s += rowStyle.Render("(book is empty)") + "\n"
	}
	for _, p := range m.proposals {
		s += rowStyle.Render(fmt.Sprintf("%-6d %-44s %12s %12s %11ds",
			p.ID, p.Proposer.Hex(), p.EnergyAmount.String(), p.PricePerUnit.String(), p.Duration)) + "\n"
	}

	s += "\n"
	if m.lastErr != nil {
		s += errStyle.Render(fmt.Sprintf("fetch error: %v", m.lastErr)) + "\n"
	} else if !m.fetchedAt.IsZero() {
		s += rowStyle.Render("updated "+m.fetchedAt.Format("15:04:05")) + "\n"
	}
	s += rowStyle.Render("q: quit  r: refresh")

	return borderStyle.Render(s)
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "energytrade API base URL")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
	)
	flag.Parse()

	m := model{
		client:   resty.New().SetBaseURL(*baseURL).SetTimeout(5 * time.Second),
		interval: *interval,
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("book-watcher: %v", err)
	}
}
