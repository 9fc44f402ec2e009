// Package patcher renders a pending suggestion as a unified-diff hunk so
// the user can see what applying it would replace.
package patcher

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/sokinpui/pair/model"
)

// Stats counts the lines a preview adds and removes.
type Stats struct {
	Added   int
	Removed int
}

func (st Stats) String() string {
	return fmt.Sprintf("+%d -%d", st.Added, st.Removed)
}

// Preview builds a single hunk that removes every document line in target
// and adds every suggestion line. No diff is computed: the hunk is the
// replace block itself.
func Preview(name string, doc []string, s model.Suggestion, target model.Range) (string, error) {
	fd := FileDiff(name, doc, s, target)
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("failed to render preview for %s: %w", name, err)
	}
	return string(out), nil
}

// FileDiff is the go-diff form of Preview.
func FileDiff(name string, doc []string, s model.Suggestion, target model.Range) *diff.FileDiff {
	start, end := clampRange(target, len(doc))

	var body strings.Builder
	for i := start; i <= end; i++ {
		body.WriteString("-" + doc[i-1] + "\n")
	}
	for _, line := range s.Lines {
		body.WriteString("+" + line + "\n")
	}

	removed := end - start + 1
	origStart := int32(start)
	if removed == 0 {
		// Pure insertion: the hunk anchors after the preceding line.
		origStart = int32(start - 1)
	}
	newStart := origStart
	if len(s.Lines) == 0 {
		newStart = int32(start - 1)
	} else if removed == 0 {
		newStart = int32(start)
	}

	section := s.Description
	if s.Description == model.DefaultDescription {
		section = ""
	}
	return &diff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
		Hunks: []*diff.Hunk{{
			OrigStartLine: origStart,
			OrigLines:     int32(removed),
			NewStartLine:  newStart,
			NewLines:      int32(len(s.Lines)),
			Section:       section,
			Body:          []byte(body.String()),
		}},
	}
}

// Count tallies added and removed lines across the hunks of fd.
func Count(fd *diff.FileDiff) Stats {
	var st Stats
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				st.Added++
			case strings.HasPrefix(line, "-"):
				st.Removed++
			}
		}
	}
	return st
}

// CountText parses a rendered preview and tallies its lines.
func CountText(preview string) (Stats, error) {
	fd, err := diff.ParseFileDiff([]byte(preview))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to parse preview: %w", err)
	}
	return Count(fd), nil
}

// clampRange fits target to a document of total lines. A start past the
// end yields an empty span positioned for appending.
func clampRange(target model.Range, total int) (int, int) {
	start, end := target.Start, target.End
	if start < 1 {
		start = 1
	}
	if start > total {
		return total + 1, total
	}
	if end > total {
		end = total
	}
	if end < start {
		end = start - 1
	}
	return start, end
}
