package main

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a-h/voicerag/client"
	"github.com/a-h/voicerag/models"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	LawyerURL    string `help:"The URL of the AI Lawyer server." env:"LAWYER_URL" default:"http://localhost:8501"`
	LawyerAPIKey string `help:"The API key for the AI Lawyer server." env:"LAWYER_API_KEY" default:""`
	PDF          string `help:"The PDF to chat about." type:"existingfile" xor:"doc" required:""`
	DocumentID   string `help:"The ID of a PDF that has already been uploaded." xor:"doc" required:""`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"warn"`
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	lc := client.New(c.LawyerURL, c.LawyerAPIKey)

	id, err := documentID(ctx, log, lc, c.PDF, c.DocumentID)
	if err != nil {
		return err
	}
	intro := models.ChatMessage{
		Type:    models.ChatMessageTypeSystem,
		Content: fmt.Sprintf("Ask a question about %s.", cmp.Or(filepath.Base(c.PDF), id)),
	}

	req := models.ChatPostRequest{
		DocumentID: id,
	}

	toLLM := make(chan models.ChatMessage)
	fromLLM := make(chan []models.ChatMessage)
	errs := make(chan error)
	defer close(toLLM)

	display := func() []models.ChatMessage {
		return append([]models.ChatMessage{intro}, req.Messages...)
	}

	go func() {
		for toSend := range toLLM {
			req.Messages = append(req.Messages, toSend)
			msgIndex := len(req.Messages)
			req.Messages = append(req.Messages, models.ChatMessage{
				Type:    models.ChatMessageTypeAI,
				Content: "",
			})
			fromLLM <- display()

			buf := new(bytes.Buffer)
			f := func(ctx context.Context, chunk []byte) error {
				buf.Write(chunk)
				req.Messages[msgIndex].Content = buf.String()
				fromLLM <- display()
				return nil
			}
			// The server expects the conversation to end with the question.
			send := req
			send.Messages = req.Messages[:msgIndex]
			if err := lc.ChatPost(ctx, send, f); err != nil {
				req.Messages = req.Messages[:msgIndex-1]
				fromLLM <- display()
				errs <- err
			}
		}
	}()

	p := tea.NewProgram(newModel(ctx, display(), toLLM, fromLLM, errs))
	if _, err = p.Run(); err != nil {
		return err
	}
	return nil
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Selection   = lipgloss.Color("#44475a")
	Foreground  = lipgloss.Color("#f8f8f2")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Green       = lipgloss.Color("#50fa7b")
	Orange      = lipgloss.Color("#ffb86c")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
	Yellow      = lipgloss.Color("#f1fa8c")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(10).Padding(1).PaddingTop(0)

var header = `
 _______  ___     ___      _______  _     _  __   __  _______  ______   
|   _   ||   |   |   |    |   _   || | _ | ||  | |  ||       ||    _ |  
|  |_|  ||   |   |   |    |  |_|  || || || ||  |_|  ||    ___||   | ||  
|       ||   |   |   |    |       ||       ||       ||   |___ |   |_||_ 
|       ||   |   |   |___ |       ||       ||_     _||    ___||    __  |
|   _   ||   |   |       ||   _   ||   _   |  |   |  |   |___ |   |  | |
|__| |__||___|   |_______||__| |__||__| |__|  |___|  |_______||___|  |_|
`

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	err      error
	ctx      context.Context

	// Chatbot interactions.
	toLLM   chan models.ChatMessage
	fromLLM chan []models.ChatMessage
	errors  chan error
}

func newModel(ctx context.Context, intro []models.ChatMessage, toLLM chan models.ChatMessage, fromLLM chan []models.ChatMessage, errors chan error) model {
	ta := textarea.New()
	ta.Placeholder = "Ask a legal question..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 280

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(headerStyle.Render(header) + "\n" + formatMessages(intro))

	ta.KeyMap.InsertNewline.SetEnabled(false)

	return model{
		ctx:      ctx,
		textarea: ta,
		viewport: vp,
		err:      nil,
		fromLLM:  fromLLM,
		toLLM:    toLLM,
		errors:   errors,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.subscribeToFromLLM(),
		m.subscribeToErrors(),
	)
}

func (m model) subscribeToFromLLM() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.fromLLM:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) subscribeToErrors() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.errors:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

var messageTypeToStyle = map[models.ChatMessageType]lipgloss.Style{
	models.ChatMessageTypeSystem: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).MaxWidth(90).Background(Background).Foreground(Green),
	models.ChatMessageTypeHuman:  lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	models.ChatMessageTypeAI:     lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
}

var messageTypeToIcon = map[models.ChatMessageType]string{
	models.ChatMessageTypeSystem: "⚖️",
	models.ChatMessageTypeHuman:  "🥷",
	models.ChatMessageTypeAI:     "✨",
}

func formatMessage(msg models.ChatMessage) string {
	style, ok := messageTypeToStyle[msg.Type]
	if !ok {
		return msg.Content
	}
	icon, ok := messageTypeToIcon[msg.Type]
	if !ok {
		icon = "🤷"
	}
	wrapped := wordwrap.String(strings.TrimSpace(icon+" "+msg.Content), 80)
	return style.Render(wrapped)
}

func formatMessages(msgs []models.ChatMessage) string {
	var sb strings.Builder
	for _, cm := range msgs {
		sb.WriteString(formatMessage(cm))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.err = msg
		return m, m.subscribeToErrors()
	case []models.ChatMessage:
		m.err = nil
		m.viewport.SetContent(formatMessages(msg))
		m.viewport.GotoBottom()
		return m, m.subscribeToFromLLM()
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			v := m.textarea.Value()

			if v == "" {
				// Don't send empty messages.
				return m, nil
			}

			m.textarea.Reset()
			return m, m.send(models.ChatMessage{
				Type:    models.ChatMessageTypeHuman,
				Content: v,
			})
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

// send hands the message to the chat goroutine without blocking the UI.
func (m model) send(msg models.ChatMessage) tea.Cmd {
	return func() tea.Msg {
		select {
		case m.toLLM <- msg:
		case <-m.ctx.Done():
		}
		return nil
	}
}

var errorStyle = lipgloss.NewStyle().Foreground(Red)

func (m model) View() string {
	var status string
	if m.err != nil {
		status = errorStyle.Render(wordwrap.String("Error: "+m.err.Error(), 80))
	}
	return fmt.Sprintf("%s\n%s\n%s",
		m.viewport.View(),
		status,
		m.textarea.View(),
	) + "\n\n"
}
