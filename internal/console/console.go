// Package console is the terminal front end for labeling sessions. It
// renders candidate pairs side by side and turns keystrokes into oracle
// responses.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/espin086/IntelliMatch/internal/active"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/types"
)

// Console presents record pairs on the terminal and reads verdicts.
// It implements active.Oracle.
type Console struct {
	rl     *readline.Instance
	fields []string

	matches   int
	distincts int
}

// New creates a console oracle that displays the schema's fields
func New(sch *schema.Schema) (*Console, error) {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("label> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "abort",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, fields: sch.Names()}, nil
}

// Close releases the terminal
func (c *Console) Close() error {
	return c.rl.Close()
}

// Judge shows the pair and reads a verdict. Ctrl+C and Ctrl+D abort the
// session. Unrecognized keys re-prompt with a hint; they are never coerced
// into a verdict.
func (c *Console) Judge(ctx context.Context, left, right *types.Record) (active.Response, error) {
	c.printPair(left, right)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return active.ResponseAbort, nil
			}
			return "", err
		}

		resp, ok := parseResponse(line)
		if !ok {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s (y)es / (n)o / (u)nsure / (f)inished, Ctrl+C to abort\n", yellow("Unrecognized:"))
			continue
		}

		switch resp {
		case active.ResponseMatch:
			c.matches++
		case active.ResponseDistinct:
			c.distincts++
		}
		return resp, nil
	}
}

// parseResponse maps an input line to an oracle response. The second
// return is false for input that should re-prompt.
func parseResponse(line string) (active.Response, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return active.ResponseMatch, true
	case "n", "no":
		return active.ResponseDistinct, true
	case "u", "unsure", "s", "skip":
		return active.ResponseSkip, true
	case "f", "finish", "done":
		return active.ResponseFinish, true
	case "q", "quit", "abort":
		return active.ResponseAbort, true
	default:
		return "", false
	}
}

// printPair renders the two records field by field with the running tally
func (c *Console) printPair(left, right *types.Record) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	width := len("id")
	for _, f := range c.fields {
		if len(f) > width {
			width = len(f)
		}
	}

	fmt.Printf("\n%s\n", cyan("───────────────────────────────────────────────────────────────"))
	fmt.Printf("%s\n", bold("Do these records refer to the same entity?"))
	fmt.Println()

	// Pad before colorizing: escape codes would otherwise count against the
	// column width and break the alignment
	fmt.Printf("  %s  %s\n", gray(fmt.Sprintf("%-*s", width, "id")), fieldColumns(left.ID, right.ID, true))
	for _, f := range c.fields {
		lv, lok := left.Value(f)
		rv, rok := right.Value(f)
		fmt.Printf("  %s  %s\n", gray(fmt.Sprintf("%-*s", width, f)), fieldColumns(display(lv, lok), display(rv, rok), false))
	}

	fmt.Println()
	fmt.Printf("%s %d match, %d distinct\n", gray("Labeled so far:"), c.matches, c.distincts)
	fmt.Printf("(y)es / (n)o / (u)nsure / (f)inished\n")
}

// fieldColumns joins the two sides of one display row
func fieldColumns(left, right string, highlight bool) string {
	if highlight {
		green := color.New(color.FgGreen).SprintFunc()
		return fmt.Sprintf("%s  |  %s", green(left), green(right))
	}
	return fmt.Sprintf("%s  |  %s", left, right)
}

// display substitutes a visible marker for missing values
func display(v string, ok bool) string {
	if !ok {
		yellow := color.New(color.FgYellow).SprintFunc()
		return yellow("<missing>")
	}
	return v
}
