package parser

import (
	"regexp"
	"strings"

	"github.com/sokinpui/pair/model"
)

var (
	// fenceOpenRegex matches an opening fence with an optional language tag.
	// Info-string text after the tag (e.g. title="x") is ignored.
	fenceOpenRegex = regexp.MustCompile("^\\s*```\\s*([\\w+#.-]*)(?:\\s+.*)?$")
	// fenceCloseRegex matches a bare closing fence.
	fenceCloseRegex = regexp.MustCompile("^\\s*```\\s*$")
	// labelRegex matches prose that introduces a block, e.g. "Here's a fix:".
	labelRegex = regexp.MustCompile(`^\s*\S.*:\s*$`)
	// bulletRegex matches a leading-dash list item.
	bulletRegex = regexp.MustCompile(`^\s*-\s+\S`)
)

// lookBack is how many lines before a fence are searched for a label.
const lookBack = 3

// implicitKeywords mark prose lines that describe an edit.
var implicitKeywords = []string{"replace", "change", "add", "modify", "update", "fix", "remove", "delete"}

type scanState int

const (
	outside scanState = iota
	inside
)

// Parse extracts suggestions from a raw assistant reply in the order they
// appear. Fenced blocks win; when there are none, prose lines mentioning an
// edit are returned as single-line suggestions.
func Parse(reply string) []model.Suggestion {
	lines := splitReply(reply)
	suggestions := parseFenced(lines)
	if len(suggestions) == 0 {
		return parseImplicit(lines)
	}
	return suggestions
}

// ParseImplicit runs only the keyword fallback pass.
func ParseImplicit(reply string) []model.Suggestion {
	return parseImplicit(splitReply(reply))
}

func parseFenced(lines []string) []model.Suggestion {
	var (
		out   []model.Suggestion
		open  *model.Suggestion
		state = outside
	)

	for i, line := range lines {
		switch state {
		case outside:
			if m := fenceOpenRegex.FindStringSubmatch(line); m != nil {
				if open == nil {
					open = &model.Suggestion{Description: describe(lines, i)}
				}
				open.Language = m[1]
				open.Lines = []string{}
				state = inside
				continue
			}
			if labelRegex.MatchString(line) || bulletRegex.MatchString(line) {
				// Any suggestion still open here has no content yet.
				open = &model.Suggestion{Description: strings.TrimSpace(line)}
			}

		case inside:
			if fenceCloseRegex.MatchString(line) {
				out = append(out, *open)
				open = nil
				state = outside
				continue
			}
			open.Lines = append(open.Lines, line)
		}
	}

	// An unterminated fence still yields what it collected.
	if state == inside && open != nil {
		out = append(out, *open)
	}
	return out
}

// describe searches the lines just above a fence for a label.
func describe(lines []string, fence int) string {
	for j := fence - 1; j >= 0 && j >= fence-lookBack; j-- {
		if labelRegex.MatchString(lines[j]) {
			return strings.TrimSpace(lines[j])
		}
	}
	return model.DefaultDescription
}

func parseImplicit(lines []string) []model.Suggestion {
	var out []model.Suggestion
	for _, line := range lines {
		if !mentionsEdit(line) {
			continue
		}
		out = append(out, model.Suggestion{
			Description: line,
			Lines:       []string{line},
		})
	}
	return out
}

func mentionsEdit(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range implicitKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func splitReply(reply string) []string {
	if reply == "" {
		return nil
	}
	reply = strings.ReplaceAll(reply, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(reply, "\n"), "\n")
}
