package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Message is a CLI error or warning with optional suggestions and hints
type Message struct {
	Warning     bool
	Context     string
	Problem     string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders the message:
//
//	✗ ENTITY NOT FOUND: Bok
//
//	   Did you mean: Book?
//
//	   → List entities: admin inspect
func (m Message) Format() string {
	var b strings.Builder

	head, symbol := color.New(color.FgRed, color.Bold), "✗"
	if m.Warning {
		head, symbol = color.New(color.FgYellow, color.Bold), "!"
	}
	yellow, cyan := color.New(color.FgYellow), color.New(color.FgCyan)
	if m.NoColor {
		head.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if m.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			cyan.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// EntityNotFound reports an unknown entity name with close matches from known
func EntityNotFound(name string, known []string, noColor bool) Message {
	return Message{
		Context:     "entity not found",
		Problem:     name,
		Suggestions: FindSimilar(name, known, 3),
		Hints:       []string{"List entities: admin inspect"},
		NoColor:     noColor,
	}
}

// Success renders a green check line
func Success(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", message)
}
