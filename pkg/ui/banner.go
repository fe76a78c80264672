package ui

import (
	"fmt"
	"strings"
)

const (
	reset = "\033[0m"
	bold  = "\033[1m"

	accent  = 214
	tagline = "cgroup snapshot lens"
)

// fg is the escape sequence for 256-color foreground n.
func fg(n int) string { return fmt.Sprintf("\033[38;5;%dm", n) }

// glyph is one block letter of the wordmark, drawn in a single color.
type glyph struct {
	color int
	lines [6]string
}

// wordmark spells cglens from slate to lime.
var wordmark = []glyph{
	{67, [6]string{" ██████╗", "██╔════╝", "██║     ", "██║     ", "╚██████╗", " ╚═════╝"}},
	{74, [6]string{" ██████╗ ", "██╔════╝ ", "██║  ███╗", "██║   ██║", "╚██████╔╝", " ╚═════╝ "}},
	{117, [6]string{"██╗     ", "██║     ", "██║     ", "██║     ", "███████╗", "╚══════╝"}},
	{121, [6]string{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"}},
	{49, [6]string{"███╗   ██╗", "████╗  ██║", "██╔██╗ ██║", "██║╚██╗██║", "██║ ╚████║", "╚═╝  ╚═══╝"}},
	{154, [6]string{"███████╗", "██╔════╝", "███████╗", "╚════██║", "███████║", "╚══════╝"}},
}

// Banner renders the colored wordmark followed by the tagline.
func Banner() string {
	var b strings.Builder
	for row := range wordmark[0].lines {
		b.WriteString(bold)
		for _, g := range wordmark {
			b.WriteString(fg(g.color))
			b.WriteString(g.lines[row])
			b.WriteByte(' ')
		}
		b.WriteString(reset + "\n")
	}
	fmt.Fprintf(&b, "\n%s%scglens%s  •  %s\n\n", bold, fg(accent), reset, tagline)
	return b.String()
}
