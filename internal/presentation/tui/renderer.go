// Package tui renders live session output for the CLI.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/roam/pkg/domain"
)

// NewRenderer returns a markdown renderer sized to the terminal.
func NewRenderer() func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		opts = append(opts, glamour.WithWordWrap(min(width, 100)))
	}
	r, _ := glamour.NewTermRenderer(opts...)

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Printer streams session progress to a writer via lifecycle hooks.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
	render  func(string) (string, error)
	plain   bool
}

// NewPrinter creates a printer for out. Non-terminal writers get plain text.
func NewPrinter(out io.Writer) *Printer {
	plain := true
	if f, ok := out.(*os.File); ok {
		plain = !term.IsTerminal(int(f.Fd()))
	}
	return &Printer{
		out:     out,
		profile: termenv.ColorProfile(),
		render:  NewRenderer(),
		plain:   plain,
	}
}

func (p *Printer) colored(s, hex string) string {
	if p.plain {
		return s
	}
	return termenv.String(s).Foreground(p.profile.Color(hex)).String()
}

// Hooks returns the lifecycle hooks that drive the printer.
func (p *Printer) Hooks() domain.Hooks {
	return domain.Hooks{
		OnPlanChanged: func(_ context.Context, e *domain.PlanEvent) {
			p.PrintPlan(e.Plan, e.Replan)
		},
		OnThought: func(_ context.Context, e *domain.ThoughtEvent) {
			fmt.Fprintf(p.out, "%s %s\n", p.colored("["+e.Stage+"]", "#818cf8"), e.Text)
		},
		OnToolResult: func(_ context.Context, e *domain.ToolEvent) {
			mark := p.colored("ok", "#34d399")
			if e.Aborted {
				mark = p.colored("aborted", "#fbbf24")
			} else if e.IsError {
				mark = p.colored("failed", "#f87171")
			}
			fmt.Fprintf(p.out, "  %s %s\n", e.Tool, mark)
		},
	}
}

// PrintPlan renders the plan as markdown.
func (p *Printer) PrintPlan(plan domain.Plan, replan bool) {
	title := "## Plan"
	if replan {
		title = "## Plan (replanned)"
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	for _, sg := range plan {
		mark := " "
		switch sg.Status {
		case domain.SubgoalSuccess:
			mark = "x"
		case domain.SubgoalFailure:
			mark = "-"
		case domain.SubgoalPending:
			mark = ">"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, sg.Description)
	}

	if p.plain {
		fmt.Fprint(p.out, b.String())
		return
	}
	if rendered, err := p.render(b.String()); err == nil {
		fmt.Fprint(p.out, rendered)
	} else {
		fmt.Fprint(p.out, b.String())
	}
}

// PrintBanner writes the startup banner.
func (p *Printer) PrintBanner(version string) {
	lines := []struct{ text, hex string }{
		{" _ __ ___   __ _ _ __ ___  ", "#818cf8"},
		{"| '__/ _ \\ / _` | '_ ` _ \\ ", "#a78bfa"},
		{"| | | (_) | (_| | | | | | |", "#c084fc"},
		{"|_|  \\___/ \\__,_|_| |_| |_|", "#e879f9"},
	}
	fmt.Fprintln(p.out)
	for _, l := range lines {
		fmt.Fprintln(p.out, p.colored(l.text, l.hex))
	}
	fmt.Fprintf(p.out, "\n  roam %s\n\n", version)
}
