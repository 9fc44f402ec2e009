package model

import "time"

// DefaultDescription labels a suggestion when the reply offers no label line.
const DefaultDescription = "Code suggestion"

// Range is a 1-based, inclusive span of document lines.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines covered by the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Suggestion is a single proposed replacement parsed from an assistant reply.
type Suggestion struct {
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Lines       []string `json:"lines"`
	// Range is nil until resolved against a document. Suggestions without
	// content are never resolved.
	Range *Range `json:"range,omitempty"`
}

// WithRange returns a copy of s targeting r. The receiver is left untouched.
func (s Suggestion) WithRange(r Range) Suggestion {
	s.Lines = append([]string(nil), s.Lines...)
	s.Range = &r
	return s
}

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleContext   Role = "context"
)

// Message is one entry of a session history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentContext is a read-only snapshot of the active document.
type DocumentContext struct {
	Filename  string   `json:"filename"`
	Language  string   `json:"language"`
	Content   string   `json:"content"`
	LineCount int      `json:"line_count"`
	Size      int      `json:"size"`
	Imports   []string `json:"imports,omitempty"`
	Functions []string `json:"functions,omitempty"`
	Comments  []string `json:"comments,omitempty"`
}

// Summary holds the results of a batch operation for display.
type Summary struct {
	Applied  []string
	Rejected []string
	Failed   []string
	Message  string
}

// Level is the severity of a user-facing notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}
