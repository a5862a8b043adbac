package chat

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wisochat/pkg/session"
)

// RuntimeInfo carries display details that live outside the session.
type RuntimeInfo struct {
	Title  string
	Relay  string
	Emojis []string
	// Connected reports the relay link state. Nil means there is no relay.
	Connected func() bool
}

// Run starts the session, drives the terminal UI until the user quits or ctx
// ends, and ends the session on the way out.
func Run(ctx context.Context, sess *session.Synchronizer, info RuntimeInfo) error {
	model := newModel(sess, info)
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Send blocks until the event loop reads it, and appends made from
	// Update run on that loop.
	sess.OnChange(func(session.Change) {
		go program.Send(transcriptChangedMsg{})
	})

	if err := sess.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.End()

	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}

	fmt.Println(renderGoodbyeBanner(info.Title))
	return nil
}

func renderGoodbyeBanner(title string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("231")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("👋 Thanks for chatting on " + displayOr(title, "wisoChat"))
}
