package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	huh "github.com/charmbracelet/huh"
)

// HuhConfirmer asks yes/no questions with a huh form. Use it when stdin is
// a terminal.
type HuhConfirmer struct {
	theme *huh.Theme
}

// NewHuhConfirmer returns a confirmer using the Charm theme.
func NewHuhConfirmer() *HuhConfirmer {
	return &HuhConfirmer{theme: huh.ThemeCharm()}
}

// Confirm shows prompt and returns the operator's answer. Aborting the form
// (ctrl+c, esc) counts as "no".
func (c *HuhConfirmer) Confirm(prompt string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(c.theme)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// LineConfirmer asks yes/no questions on plain line-oriented streams, for
// piped input and tests.
type LineConfirmer struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewLineConfirmer reads answers from r and writes prompts to w.
func NewLineConfirmer(r io.Reader, w io.Writer) *LineConfirmer {
	return &LineConfirmer{in: bufio.NewScanner(r), out: w}
}

// Confirm prints "prompt (y/N) " and accepts y or yes. EOF counts as "no".
func (c *LineConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(c.out, "? %s (y/N) ", prompt)
	if !c.in.Scan() {
		fmt.Fprintln(c.out)
		return false, c.in.Err()
	}
	answer := strings.TrimSpace(strings.ToLower(c.in.Text()))
	return answer == "y" || answer == "yes", nil
}
