package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/presentation/tui"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

var (
	// ErrCheckpointNotFound is returned when an id names no checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrNoCheckpoints is returned when a rollback has nothing to choose from.
	ErrNoCheckpoints = errors.New("no checkpoints available for rollback")
	// ErrInvalidChoice is returned for picker input that names no entry.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrCancelled is returned when the user quits the picker.
	ErrCancelled = errors.New("cancelled")
)

// CheckpointInfo is the typed view of the metadata written by the Supervisor.
type CheckpointInfo struct {
	CheckpointID   string `mapstructure:"checkpoint_id"`
	Timestamp      string `mapstructure:"timestamp"`
	ConversationID string `mapstructure:"conversation_id"`
	CurrentStep    string `mapstructure:"current_step"`
	MessageCount   int    `mapstructure:"message_count"`
}

// DecodeInfo reads the known keys of checkpoint metadata. Unknown keys are ignored;
// JSON numbers decode into MessageCount.
func DecodeInfo(metadata map[string]any) (CheckpointInfo, error) {
	var info CheckpointInfo
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return info, err
	}
	if err := dec.Decode(metadata); err != nil {
		return info, fmt.Errorf("malformed checkpoint metadata: %w", err)
	}
	return info, nil
}

func infoOf(s domain.CheckpointSummary) CheckpointInfo {
	info, _ := DecodeInfo(s.Metadata)
	info.CheckpointID = s.CheckpointID
	if info.ConversationID == "" {
		info.ConversationID = s.ConversationID
	}
	if info.CurrentStep == "" {
		info.CurrentStep = s.CurrentStep
	}
	if info.Timestamp == "" {
		info.Timestamp = s.Timestamp
	}
	return info
}

// ListCheckpoints prints checkpoints newest first, as text or as a JSON array.
func ListCheckpoints(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, conversationID string, asJSON bool) error {
	sums, err := sup.ListCheckpoints(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if asJSON {
		return writeJSON(p.Writer(), sums)
	}

	if len(sums) == 0 {
		p.Info("No checkpoints found.")
		return nil
	}
	for _, s := range sums {
		info := infoOf(s)
		p.Plain("ID: %s", info.CheckpointID)
		p.Plain("  Time: %s", info.Timestamp)
		p.Plain("  Conversation: %s", info.ConversationID)
		p.Plain("  Step: %s", info.CurrentStep)
		p.Plain("  Messages: %d", info.MessageCount)
		p.Plain("")
	}
	p.Plain("Total: %d checkpoint(s)", len(sums))
	return nil
}

// InspectCheckpoint prints the full stored record as indented JSON.
func InspectCheckpoint(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, id string) error {
	cp, ok, err := sup.LoadCheckpoint(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	return writeJSON(p.Writer(), cp)
}

// RollbackCheckpoint restores the state of id and prints a summary of it.
// With an empty id and a non-nil in, the user picks from a numbered list.
func RollbackCheckpoint(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, in io.Reader, id string) (*domain.State, error) {
	if id == "" {
		if in == nil {
			return nil, errors.New("checkpoint id is required when stdin is not a terminal")
		}
		sums, err := sup.ListCheckpoints(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if id, err = Pick(in, p, sums); err != nil {
			return nil, err
		}
	}

	state, ok, err := sup.RollbackCheckpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to roll back to %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}

	p.Success("Rolled back to checkpoint: %s", id)
	p.Plain("   Conversation ID: %s", state.ConversationID)
	p.Plain("   Step: %s", state.CurrentStep)
	p.Plain("   Messages: %d", len(state.Messages))
	return state, nil
}

// Pick shows sums as a numbered list and reads the chosen number from in.
// "q" cancels.
func Pick(in io.Reader, p *tui.Printer, sums []domain.CheckpointSummary) (string, error) {
	if len(sums) == 0 {
		return "", ErrNoCheckpoints
	}

	p.Plain("Available checkpoints:")
	for i, s := range sums {
		info := infoOf(s)
		p.Plain("%d. %s (Time: %s, Step: %s)", i+1, info.CheckpointID, info.Timestamp, info.CurrentStep)
	}
	fmt.Fprint(p.Writer(), "\nEnter checkpoint number to rollback (or 'q' to quit): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", ErrCancelled
	}
	choice := strings.TrimSpace(line)
	if strings.EqualFold(choice, "q") {
		return "", ErrCancelled
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(sums) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}
	return sums[n-1].CheckpointID, nil
}

// RemoveCheckpoints deletes each id, reporting all failures together.
func RemoveCheckpoints(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, ids []string) error {
	var errs []error
	for _, id := range ids {
		ok, err := sup.DeleteCheckpoint(ctx, id)
		switch {
		case err != nil:
			p.Failure("Error removing '%s': %v", id, err)
			errs = append(errs, err)
		case !ok:
			p.Failure("Checkpoint '%s' not found", id)
			errs = append(errs, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id))
		default:
			p.Success("Removed checkpoint '%s'", id)
		}
	}
	return errors.Join(errs...)
}

// CleanupCheckpoints removes checkpoints older than maxAge.
func CleanupCheckpoints(ctx context.Context, sup *wayz.Supervisor, p *tui.Printer, maxAge time.Duration) error {
	n, err := sup.CleanupCheckpoints(ctx, maxAge)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	p.Success("Removed %d checkpoint(s) older than %s", n, maxAge)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
