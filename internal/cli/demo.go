package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/presentation/tui"
	"github.com/aretw0/wayz/pkg/domain"
)

// ErrConversationFailed is returned by RunDemo when the run ends with an error state.
var ErrConversationFailed = errors.New("conversation failed")

// DemoOptions configures RunDemo.
type DemoOptions struct {
	ConversationID string
	PolicyMode     string
	Banner         bool
}

// RunDemo runs one conversation on the default graph and prints its transcript.
func RunDemo(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, opts DemoOptions) (*domain.State, error) {
	if opts.Banner {
		p.Banner(wayz.Version)
	}
	p.Info("Starting demo conversation: %s", opts.ConversationID)
	p.Info("Policy: %s", opts.PolicyMode)

	state, err := sup.RunConversation(ctx, opts.ConversationID)
	if err != nil {
		if state != nil {
			p.Failure("%s", state.Error)
		}
		return state, err
	}

	if err := p.Markdown(Transcript(state)); err != nil {
		return state, fmt.Errorf("failed to render transcript: %w", err)
	}

	if state.Failed() {
		p.Failure("Error: %s", state.Error)
		return state, fmt.Errorf("%w: %s", ErrConversationFailed, state.Error)
	}
	p.Success("Demo completed successfully!")
	return state, nil
}

// Transcript renders a state as markdown: a summary table then the messages.
func Transcript(s *domain.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation `%s`\n\n", s.ConversationID)
	b.WriteString("| Final step | Messages | Checkpoints |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %d | %d |\n\n", orDash(s.CurrentStep), len(s.Messages), len(s.CheckpointIDs))

	if s.Error != "" {
		fmt.Fprintf(&b, "> **Error:** %s\n\n", s.Error)
	}

	if len(s.Messages) > 0 {
		b.WriteString("## Messages\n\n")
		for i, m := range s.Messages {
			fmt.Fprintf(&b, "%d. **%s** _%s_: %s\n", i+1, orDash(m.Sender), m.Performative, contentText(m))
		}
		b.WriteString("\n")
	}

	if n := len(s.CheckpointIDs); n > 0 {
		fmt.Fprintf(&b, "Latest checkpoint: `%s`\n", s.CheckpointIDs[n-1])
	}
	return b.String()
}

func contentText(m domain.Message) string {
	if t, ok := m.Text(); ok {
		return t
	}
	return fmt.Sprint(m.Content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
