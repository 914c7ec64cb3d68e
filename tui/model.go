package tui

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/go-authgate/order-console/session"
)

// RenewFunc extends the session and returns the new access token.
type RenewFunc func(ctx context.Context) (string, error)

// state represents the current phase of the session dialog.
type state int

const (
	stateAsking    state = iota
	stateRenewing        // extend chosen, renewal running
	stateRenewed         // new token obtained
	stateFailed          // renewal failed
	stateLoggedOut       // user chose to log out
)

// statusKind distinguishes line types in the status output.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
	statusErr
)

// choice is a dialog button.
type choice int

const (
	choiceLogout choice = iota
	choiceExtend
)

// Model is the BubbleTea model for the session-expired dialog.
type Model struct {
	ctx     context.Context
	renew   RenewFunc
	state   state
	focus   choice
	spinner spinner.Model
	width   int

	token string
	err   error
}

// Lipgloss styles, defined once at package level.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleButton = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("244")).
			Padding(0, 2)

	styleButtonFocused = styleButton.
				Bold(true).
				Foreground(lipgloss.Color("228")).
				BorderForeground(lipgloss.Color("228"))

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the dialog. renew runs when the user picks Extend.
func NewModel(ctx context.Context, renew RenewFunc) Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		ctx:     ctx,
		renew:   renew,
		state:   stateAsking,
		focus:   choiceExtend,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		return m.handleKey(msg.String())

	case MsgRenewed:
		m.token = msg.Token
		m.state = stateRenewed
		return m, tea.Quit

	case MsgRenewFailed:
		m.err = msg.Err
		m.state = stateFailed
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	if m.state == stateRenewing {
		// The renewal keeps running for other requests; this dialog gives up.
		if key == "ctrl+c" {
			m.state = stateLoggedOut
			return m, tea.Quit
		}
		return m, nil
	}
	if m.state != stateAsking {
		return m, nil
	}

	switch key {
	case "left", "right", "tab", "shift+tab", "h", "l":
		if m.focus == choiceExtend {
			m.focus = choiceLogout
		} else {
			m.focus = choiceExtend
		}
		return m, nil
	case "enter", "space":
		if m.focus == choiceExtend {
			return m.extend()
		}
		return m.logout()
	case "y", "e":
		return m.extend()
	case "n", "q", "esc", "ctrl+c":
		return m.logout()
	}
	return m, nil
}

func (m Model) extend() (tea.Model, tea.Cmd) {
	m.state = stateRenewing
	return m, tea.Batch(m.spinner.Tick, m.renewCmd())
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	m.state = stateLoggedOut
	return m, tea.Quit
}

func (m Model) renewCmd() tea.Cmd {
	ctx, renew := m.ctx, m.renew
	return func() tea.Msg {
		token, err := renew(ctx)
		if err != nil {
			return MsgRenewFailed{Err: err}
		}
		return MsgRenewed{Token: token}
	}
}

// Result reports the outcome once the dialog has quit. Anything other than a
// successful renewal is a declined recovery.
func (m Model) Result() (string, error) {
	switch m.state {
	case stateRenewed:
		return m.token, nil
	case stateFailed:
		return "", m.err
	default:
		return "", session.ErrRecoveryDeclined
	}
}

// View renders the TUI.
func (m Model) View() tea.View {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Session Expired  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateAsking:
		b.WriteString("Your session has expired. Would you like to extend it?\n\n")
		logout, extend := styleButton, styleButton
		if m.focus == choiceExtend {
			extend = styleButtonFocused
		} else {
			logout = styleButtonFocused
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			logout.Render("Logout"), " ", extend.Render("Extend")))
		b.WriteString("\n")
		b.WriteString(styleDim.Render("←/→ select · enter confirm · y extend · n logout"))
		b.WriteString("\n")

	case stateRenewing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Extending session...\n")

	case stateRenewed:
		b.WriteString(styleOK.Render("  ✓ Session extended"))
		b.WriteString("\n")

	case stateFailed:
		b.WriteString(styleErr.Render("  ✗ Could not extend the session"))
		b.WriteString("\n")
		b.WriteString(styleDim.Render("  " + m.err.Error()))
		b.WriteString("\n")

	case stateLoggedOut:
		b.WriteString(styleDim.Render("  · Logged out"))
		b.WriteString("\n")
	}

	return tea.NewView(b.String())
}
