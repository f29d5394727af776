package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/pipeline"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Preparer builds the knowledge base, fetching when needed.
type Preparer interface {
	Prepare(ctx context.Context, forceRefresh bool) pipeline.Outcome
}

// RunOpts holds all parameters for launching the TUI.
type RunOpts struct {
	Pipeline      Preparer
	Answerer      *answer.Answerer
	Recorder      pipeline.AnswerRecorder
	Logger        *zap.Logger
	ForceRefresh  bool
	AnswerTimeout time.Duration
}

type App struct {
	opts      RunOpts
	assistant *pipeline.Assistant
	outcome   pipeline.Outcome
	exchanges []exchange

	width  int
	height int

	input   textinput.Model
	spinner spinner.Model

	ready       bool
	asking      bool
	refreshing  bool
	scroll      int
	currentDate string
}

func NewApp(opts RunOpts) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Votre question..."
	ti.Prompt = promptStyle.Render("? ")
	ti.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return &App{
		opts:        opts,
		input:       ti,
		spinner:     sp,
		currentDate: time.Now().Format("02/01/2006"),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.prepareCmd(a.opts.ForceRefresh), a.spinner.Tick)
}

func (a *App) prepareCmd(force bool) tea.Cmd {
	p := a.opts.Pipeline
	return func() tea.Msg {
		return kbReadyMsg{outcome: p.Prepare(context.Background(), force)}
	}
}

// askCmd captures the current assistant so a refresh mid-question does not
// change the base the answer is drawn from.
func (a *App) askCmd(question string) tea.Cmd {
	assistant := a.assistant
	timeout := a.opts.AnswerTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reply, err := assistant.Ask(ctx, question)
		if err != nil {
			return answerErrMsg{question: question, err: err}
		}
		return answerMsg{reply: reply}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = max(10, msg.Width-4)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case kbReadyMsg:
		a.outcome = msg.outcome
		a.assistant = pipeline.NewAssistant(a.opts.Answerer, msg.outcome.KB, a.opts.Recorder, a.opts.Logger)
		a.ready = true
		a.refreshing = false
		return a, a.input.Focus()

	case answerMsg:
		a.settle(msg.reply.Question, func(e *exchange) {
			e.answer = msg.reply.Text
			e.sentinel = msg.reply.Sentinel
		})
		return a, nil

	case answerErrMsg:
		a.settle(msg.question, func(e *exchange) { e.err = msg.err })
		return a, nil

	case spinner.TickMsg:
		if a.busy() {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	return a, nil
}

func (a *App) busy() bool {
	return !a.ready || a.asking || a.refreshing
}

// settle fills the pending exchange for question.
func (a *App) settle(question string, fill func(*exchange)) {
	a.asking = false
	a.scroll = 0
	for i := len(a.exchanges) - 1; i >= 0; i-- {
		if a.exchanges[i].pending && a.exchanges[i].question == question {
			a.exchanges[i].pending = false
			fill(&a.exchanges[i])
			return
		}
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return a, tea.Quit
	}

	if !a.ready {
		return a, nil
	}

	switch msg.String() {
	case "enter":
		if a.asking || a.refreshing {
			return a, nil
		}
		question := a.input.Value()
		a.input.Reset()
		a.exchanges = append(a.exchanges, exchange{question: question, pending: true, askedAt: time.Now()})
		a.asking = true
		a.scroll = 0
		return a, tea.Batch(a.askCmd(question), a.spinner.Tick)
	case "ctrl+r":
		if a.asking || a.refreshing {
			return a, nil
		}
		a.refreshing = true
		return a, tea.Batch(a.prepareCmd(true), a.spinner.Tick)
	case "pgup":
		a.scroll += 5
		return a, nil
	case "pgdown":
		a.scroll = max(0, a.scroll-5)
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	if a.width == 0 {
		return lipgloss.NewStyle().Foreground(colorAccent).Render("  bofip")
	}

	status := renderStatusBar(barState{
		ready:   a.ready,
		outcome: a.outcome,
		asking:  a.asking,
		asked:   len(a.exchanges),
	}, a.width)

	if !a.ready {
		return lipgloss.JoinVertical(lipgloss.Left, renderWelcome(a.width, a.height-1, a.spinner.View()), status)
	}

	// Header
	headerLeft := headerStyle.Render("bofip")
	headerRight := headerDateStyle.Render(a.currentDate)
	headerGap := a.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerGap < 0 {
		headerGap = 0
	}
	header := headerLeft + fmt.Sprintf("%*s", headerGap, "") + headerRight

	// header, input, status and the pane border
	contentHeight := a.height - 5
	if contentHeight < 3 {
		contentHeight = 3
	}
	maxScroll := max(0, a.transcriptLines()-contentHeight)
	if a.scroll > maxScroll {
		a.scroll = maxScroll
	}
	transcript := renderTranscript(a.exchanges, a.width-4, contentHeight, a.scroll)
	pane := transcriptPaneStyle.Width(a.width - 2).Height(contentHeight).Render(transcript)

	input := a.input.View()
	switch {
	case a.asking:
		input = a.spinner.View() + " Recherche dans le BOFIP..."
	case a.refreshing:
		input = a.spinner.View() + " Synchronisation..."
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, pane, input, status)
}

func (a *App) transcriptLines() int {
	n := 0
	for i, e := range a.exchanges {
		if i > 0 {
			n++
		}
		n += strings.Count(renderExchange(e, a.width-4), "\n") + 1
	}
	return n
}

// Run starts the TUI application.
func Run(opts RunOpts) error {
	app := NewApp(opts)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
