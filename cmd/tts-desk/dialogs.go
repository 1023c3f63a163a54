package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// promptDialogs implements core.Dialogs on a terminal: each picker prints a
// prompt and reads one line. An empty line dismisses the dialog.
type promptDialogs struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptDialogs(in io.Reader, out io.Writer) *promptDialogs {
	return &promptDialogs{in: bufio.NewReader(in), out: out}
}

func (d *promptDialogs) ChooseExecutable(ctx context.Context, current string) (string, error) {
	return d.ask(ctx, "Piper executable", current)
}

func (d *promptDialogs) ChooseDirectory(ctx context.Context, current string) (string, error) {
	return d.ask(ctx, "Voice model directory", current)
}

func (d *promptDialogs) ChooseSaveFile(ctx context.Context, suggested string) (string, error) {
	return d.ask(ctx, "Save audio as", suggested)
}

func (d *promptDialogs) ChooseTextFile(ctx context.Context) (string, error) {
	return d.ask(ctx, "Text file", "")
}

func (d *promptDialogs) ask(ctx context.Context, label, current string) (string, error) {
	err := ctx.Err()
	if err != nil {
		return "", err
	}

	if current != "" {
		fmt.Fprintf(d.out, "%s [%s] (empty to cancel): ", label, current)
	} else {
		fmt.Fprintf(d.out, "%s (empty to cancel): ", label)
	}

	line, err := d.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	return strings.TrimSpace(line), nil
}
