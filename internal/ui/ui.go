package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	AddedColor   = color.New(color.FgGreen)
	RemovedColor = color.New(color.FgRed)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(os.Stderr, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// LevelColor picks the notice color for level.
func LevelColor(level model.Level) *color.Color {
	switch level {
	case model.LevelSuccess:
		return SuccessColor
	case model.LevelWarn:
		return WarningColor
	case model.LevelError:
		return ErrorColor
	default:
		return InfoColor
	}
}

// --- Summaries ---

// PrintSummary reports the outcome of an apply or reject run.
func PrintSummary(w io.Writer, s model.Summary) {
	HeaderColor.Fprintln(w, "\n--- Summary ---")

	if len(s.Applied) == 0 && len(s.Rejected) == 0 && len(s.Failed) == 0 {
		if s.Message != "" {
			InfoColor.Fprintln(w, s.Message)
		} else {
			InfoColor.Fprintln(w, "No suggestions were applied.")
		}
		return
	}

	if len(s.Applied) > 0 {
		SuccessColor.Fprintf(w, "Applied %d suggestion(s):\n", len(s.Applied))
		for _, d := range s.Applied {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if len(s.Rejected) > 0 {
		WarningColor.Fprintf(w, "Rejected %d suggestion(s):\n", len(s.Rejected))
		for _, d := range s.Rejected {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if len(s.Failed) > 0 {
		ErrorColor.Fprintf(w, "Failed to apply %d suggestion(s):\n", len(s.Failed))
		for _, d := range s.Failed {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if s.Message != "" {
		InfoColor.Fprintln(w, s.Message)
	}
}

// --- Suggestions ---

// PrintSuggestions lists entries with a marker on the current one.
func PrintSuggestions(w io.Writer, entries []suggest.Entry) {
	if len(entries) == 0 {
		FaintColor.Fprintln(w, "No suggestions.")
		return
	}
	for _, e := range entries {
		marker := " "
		if e.Current {
			marker = ">"
		}
		where := ""
		if e.Range != nil {
			where = fmt.Sprintf(" (lines %d-%d)", e.Range.Start, e.Range.End)
		}
		lang := ""
		if e.Language != "" {
			lang = " [" + e.Language + "]"
		}
		HeaderColor.Fprintf(w, "%s %d. %s", marker, e.Index, e.Description)
		FaintColor.Fprintf(w, "%s%s\n", lang, where)
		for _, line := range e.Lines {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// PrintDiff writes a unified diff with added and removed lines colored.
func PrintDiff(w io.Writer, diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			HeaderColor.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			InfoColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			AddedColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			RemovedColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}

// Presenter renders session output to a terminal stream.
type Presenter struct {
	out io.Writer
	// Preview renders the current suggestion as a diff; nil disables it.
	Preview func() (string, error)
}

// NewPresenter writes to out, or stderr when out is nil.
func NewPresenter(out io.Writer) *Presenter {
	if out == nil {
		out = os.Stderr
	}
	return &Presenter{out: out}
}

func (p *Presenter) RenderSuggestions(entries []suggest.Entry) {
	PrintSuggestions(p.out, entries)
}

func (p *Presenter) Notify(level model.Level, message string) {
	LevelColor(level).Fprintln(p.out, message)
}

func (p *Presenter) ShowPreview() {
	if p.Preview == nil {
		return
	}
	diff, err := p.Preview()
	if err != nil {
		p.Notify(model.LevelWarn, fmt.Sprintf("Preview unavailable: %v", err))
		return
	}
	PrintDiff(p.out, diff)
}
