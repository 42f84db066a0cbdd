package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/signin"
)

// Flow is the part of the authenticator the sign-in view drives.
type Flow interface {
	SignIn(ctx context.Context)
	Confirm() error
	Cancel()
	Subscribe() (<-chan signin.Snapshot, func())
}

// SnapshotMsg carries a new authenticator snapshot into the model.
// It is exported so that tests can inject it directly into SignInModel.Update.
type SnapshotMsg struct {
	Snapshot signin.Snapshot
}

// countdownMsg re-renders the remaining verification time.
type countdownMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	codeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

const separator = "────────────────────────────────────────────────────────────\n"

// SignInModel shows the device code and verification link and lets the user
// confirm, cancel or retry a sign-in.
type SignInModel struct {
	ctx         context.Context
	flow        Flow
	updates     <-chan signin.Snapshot
	unsubscribe func()
	snap        signin.Snapshot
	now         func() time.Time
	quitting    bool
}

// NewSignInModel subscribes to flow. The attempt starts when the program runs Init.
func NewSignInModel(ctx context.Context, flow Flow) SignInModel {
	updates, unsubscribe := flow.Subscribe()
	return SignInModel{
		ctx:         ctx,
		flow:        flow,
		updates:     updates,
		unsubscribe: unsubscribe,
		snap:        signin.Snapshot{State: domain.StateIdle},
		now:         time.Now,
	}
}

// WithClock returns a copy of the model using now for the countdown.
func (m SignInModel) WithClock(now func() time.Time) SignInModel {
	m.now = now
	return m
}

// Snapshot returns the last snapshot the model received.
func (m SignInModel) Snapshot() signin.Snapshot {
	return m.snap
}

// Init starts the sign-in attempt and the countdown.
func (m SignInModel) Init() tea.Cmd {
	return tea.Batch(m.start(), m.next(), countdown())
}

func (m SignInModel) start() tea.Cmd {
	return func() tea.Msg {
		m.flow.SignIn(m.ctx)
		return nil
	}
}

func (m SignInModel) next() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return nil
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func countdown() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return countdownMsg{}
	})
}

// Update handles snapshots, the countdown and key presses.
func (m SignInModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = msg.Snapshot
		if m.snap.State == domain.StateSucceeded {
			return m.quit()
		}
		return m, m.next()

	case countdownMsg:
		if m.quitting {
			return m, nil
		}
		return m, countdown()

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.snap.State == domain.StateAwaitingVerification {
				_ = m.flow.Confirm()
			}
		case "esc":
			if m.snap.State.InFlight() {
				m.flow.Cancel()
			}
		case "r":
			if m.snap.State.Terminal() && m.snap.State != domain.StateSucceeded {
				return m, m.start()
			}
		case "q", "ctrl+c":
			if m.snap.State.InFlight() {
				m.flow.Cancel()
			}
			return m.quit()
		}
	}
	return m, nil
}

func (m SignInModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// View renders the sign-in screen.
func (m SignInModel) View() string {
	header := titleStyle.Render(" modeldeck | Sign in with GitHub") + "\n"

	var body strings.Builder
	body.WriteString("\n")
	switch m.snap.State {
	case domain.StateIdle, domain.StateInitiating:
		body.WriteString(" Requesting a sign-in code...\n")
	case domain.StateAwaitingVerification, domain.StatePolling:
		if p := m.snap.Prompt; p != nil {
			fmt.Fprintf(&body, " Open:     %s\n", p.VerificationURIComplete)
			fmt.Fprintf(&body, " Code:     %s\n\n", codeStyle.Render(p.UserCode))
			fmt.Fprintf(&body, " Expires in %s\n\n", formatRemaining(p.Deadline.Sub(m.now())))
		}
		if m.snap.State == domain.StateAwaitingVerification {
			body.WriteString(" Press enter once you have opened the link and entered the code.\n")
		} else {
			body.WriteString(" Waiting for authorization...\n")
		}
	case domain.StateSucceeded:
		login := ""
		if m.snap.User != nil {
			login = m.snap.User.Login
		}
		fmt.Fprintf(&body, " Signed in as %s.\n", login)
	case domain.StateFailed:
		body.WriteString(errorStyle.Render(" Sign-in failed: "+reasonText(m.snap.Reason)) + "\n")
		if m.snap.Error != "" {
			body.WriteString(hintStyle.Render(" "+m.snap.Error) + "\n")
		}
	case domain.StateCancelled:
		body.WriteString(" Sign-in cancelled.\n")
	}
	body.WriteString("\n")

	return header + separator + body.String() + separator + hintStyle.Render(m.footer()) + "\n"
}

func (m SignInModel) footer() string {
	switch {
	case m.snap.State == domain.StateAwaitingVerification:
		return " enter: continue   esc: cancel   q: quit"
	case m.snap.State.InFlight():
		return " esc: cancel   q: quit"
	case m.snap.State == domain.StateFailed || m.snap.State == domain.StateCancelled:
		return " r: try again   q: quit"
	default:
		return " q: quit"
	}
}

func reasonText(r domain.FailureReason) string {
	switch r {
	case domain.ReasonExpired:
		return "the code expired before it was used"
	case domain.ReasonDenied:
		return "authorization was denied on GitHub"
	case domain.ReasonTimeout:
		return "timed out waiting for authorization"
	case domain.ReasonProfile:
		return "signed in, but the GitHub profile could not be loaded"
	case domain.ReasonInitiation:
		return "could not start sign-in"
	case domain.ReasonNetwork:
		return "could not reach the auth proxy"
	case domain.ReasonOther:
		return "an unexpected error occurred"
	default:
		return "GitHub returned an error"
	}
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// RunSignIn runs the sign-in screen until the attempt succeeds or the user quits
// and returns the last snapshot. A program killed through ctx reports a
// cancelled attempt.
func RunSignIn(ctx context.Context, flow Flow, opts ...tea.ProgramOption) (signin.Snapshot, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewSignInModel(ctx, flow), opts...)
	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		flow.Cancel()
		return signin.Snapshot{State: domain.StateCancelled}, nil
	}
	if err != nil {
		return signin.Snapshot{}, fmt.Errorf("running sign-in view: %w", err)
	}
	return final.(SignInModel).Snapshot(), nil
}
