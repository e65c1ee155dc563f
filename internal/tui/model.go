// Package tui implements the interactive chat terminal client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ZeeshanML/rag-chatbot-go/internal/apiclient"
)

// ChatPort is the TUI-facing subset of the API client.
type ChatPort interface {
	Chat(ctx context.Context, req apiclient.ChatRequest) (*apiclient.ChatResponse, error)
}

// turn is one completed question/answer exchange in the transcript.
type turn struct {
	question string
	answer   string
	model    string
}

// answerMsg carries a completed chat call back into the update loop.
type answerMsg struct {
	question string
	resp     *apiclient.ChatResponse
	err      error
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	client    ChatPort
	modelName string

	input    textinput.Model
	viewport viewport.Model

	turns     []turn
	sessionID string
	status    string
	waiting   bool
	ready     bool
}

// New creates a chat model talking to the given client. modelName optionally
// overrides the server's default chat model.
func New(client ChatPort, modelName string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		client:    client,
		modelName: modelName,
		input:     ti,
		viewport:  vp,
		status:    "Connected. Ask away.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// header + status + input box + spacer
		reserved := 1 + 1 + qh + 1
		vh := msg.Height - reserved - th
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "up":
			m.viewport.LineUp(3)
			return m, nil
		case "down":
			m.viewport.LineDown(3)
			return m, nil
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.resp.SessionID
		m.turns = append(m.turns, turn{
			question: msg.question,
			answer:   msg.resp.Answer,
			model:    msg.resp.Model,
		})
		m.status = fmt.Sprintf("Session %s", shortID(m.sessionID))
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask returns a command that runs the chat call off the update loop.
func (m Model) ask(question string) tea.Cmd {
	client := m.client
	sessionID := m.sessionID
	modelName := m.modelName
	return func() tea.Msg {
		resp, err := client.Chat(context.Background(), apiclient.ChatRequest{
			Question:  question,
			SessionID: sessionID,
			Model:     modelName,
		})
		return answerMsg{question: question, resp: resp, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("ragchat")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No messages yet. Upload documents with `ragchat ingest`, then ask about them."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: ") + t.question)
		b.WriteString("\n")
		b.WriteString(assistantStyle.Render(t.model+": ") + t.answer)
	}
	return b.String()
}

// shortID truncates a session id for the status line.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Run starts the chat client and blocks until the user quits.
func Run(client ChatPort, modelName string) error {
	p := tea.NewProgram(New(client, modelName), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
