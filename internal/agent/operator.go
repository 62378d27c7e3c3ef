// File: internal/agent/operator.go
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Operator is the human-in-the-loop boundary. The coordinator calls it when
// the agent hands the browser to a person (security checkpoints, explicit
// help requests) and when a risky action needs a yes/no verdict. Sub-agents
// carry no operator; they terminate instead of pausing.
type Operator interface {
	// NotifyPause tells the human why the agent stopped and that the browser
	// is now theirs.
	NotifyPause(reason string)
	// AwaitResume blocks until the human hands control back, or ctx ends.
	AwaitResume(ctx context.Context) error
	// Confirm asks for an explicit yes/no on one described action.
	Confirm(ctx context.Context, description, risk string) (bool, error)
}

// TerminalOperator prompts on an interactive terminal: pause notifications go
// to the output writer, resume is any line of input, confirmation is a y/n
// answer.
type TerminalOperator struct {
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

var _ Operator = (*TerminalOperator)(nil)

// NewTerminalOperator builds an operator reading from in and writing to out,
// typically os.Stdin and os.Stderr so prompts survive stdout redirection.
func NewTerminalOperator(in io.Reader, out io.Writer, logger *zap.Logger) *TerminalOperator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalOperator{
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger.Named("operator"),
	}
}

func (o *TerminalOperator) NotifyPause(reason string) {
	o.logger.Warn("Agent paused for human intervention", zap.String("reason", reason))
	fmt.Fprintf(o.out, "\n=== HUMAN INTERVENTION REQUIRED ===\n%s\n", reason)
	fmt.Fprint(o.out, "The browser is yours. Press Enter when done to hand control back.\n")
}

// AwaitResume blocks until the operator presses Enter. The read happens on
// its own goroutine so a canceled context still unblocks the caller.
func (o *TerminalOperator) AwaitResume(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := o.in.ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("waiting for resume: %w", err)
		}
		o.logger.Info("Operator resumed the agent")
		return nil
	}
}

func (o *TerminalOperator) Confirm(ctx context.Context, description, risk string) (bool, error) {
	fmt.Fprintf(o.out, "\n=== CONFIRMATION REQUIRED (risk: %s) ===\n%s\nProceed? [y/N]: ", risk, description)

	type answer struct {
		line string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		line, err := o.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		done <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-done:
		if a.err != nil {
			return false, fmt.Errorf("reading confirmation: %w", a.err)
		}
		verdict := strings.ToLower(strings.TrimSpace(a.line))
		approved := verdict == "y" || verdict == "yes"
		o.logger.Info("Operator confirmation answered",
			zap.String("description", description),
			zap.String("risk", risk),
			zap.Bool("approved", approved))
		return approved, nil
	}
}
