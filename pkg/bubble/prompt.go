package bubble

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/go-faster/errors"
)

// Prompter blocks until the operator confirms.
type Prompter interface {
	WaitForEnter(ctx context.Context, prompt string) error
}

// LinePrompter prints a prompt and waits for a line on in. A closed input
// counts as confirmation.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) WaitForEnter(ctx context.Context, prompt string) error {
	fmt.Fprint(p.out, prompt)

	done := make(chan error, 1)
	go func() {
		_, err := p.in.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrap(err, "read confirmation")
		}
		return nil
	}
}
