package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/pair/model"
)

const fence = "```"

func TestParseLuaFix(t *testing.T) {
	reply := strings.Join([]string{
		"Here's a fix:",
		fence + "lua",
		"local function add(a, b)",
		"  return a + b",
		"end",
		fence,
	}, "\n")

	got := Parse(reply)

	require.Len(t, got, 1)
	assert.Equal(t, "Here's a fix:", got[0].Description)
	assert.Equal(t, "lua", got[0].Language)
	assert.Equal(t, []string{"local function add(a, b)", "  return a + b", "end"}, got[0].Lines)
	assert.Nil(t, got[0].Range)
}

func TestParseNFencedBlocksInOrder(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d blocks", n), func(t *testing.T) {
			var b strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&b, "Some prose about block %d.\n", i)
				fmt.Fprintf(&b, "%sgo\n", fence)
				fmt.Fprintf(&b, "line %d-a\n", i)
				fmt.Fprintf(&b, "\tline %d-b\n", i)
				fmt.Fprintf(&b, "%s\n", fence)
			}

			got := Parse(b.String())

			require.Len(t, got, n)
			for i, s := range got {
				assert.Equal(t, []string{fmt.Sprintf("line %d-a", i), fmt.Sprintf("\tline %d-b", i)}, s.Lines)
				assert.Equal(t, model.DefaultDescription, s.Description)
			}
		})
	}
}

func TestParseUnterminatedFence(t *testing.T) {
	reply := "Try this:\n" + fence + "python\ndef f():\n    return 1\n\n# trailing"

	got := Parse(reply)

	require.Len(t, got, 1)
	assert.Equal(t, "Try this:", got[0].Description)
	assert.Equal(t, []string{"def f():", "    return 1", "", "# trailing"}, got[0].Lines)
}

func TestParseEmptyBlockIsEmitted(t *testing.T) {
	got := Parse(fence + "\n" + fence)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Lines)
	assert.Equal(t, "", got[0].Language)
}

func TestParseLookBackWindow(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "label three lines up",
			reply: "Update the loop:\nfirst\nsecond\n" + fence + "\nx\n" + fence,
			want:  "Update the loop:",
		},
		{
			name: "label reused by a following block",
			// The label opens a suggestion that the first (empty) block
			// consumes; the second fence finds it again inside its window.
			reply: "Step one:\n" + fence + "\n" + fence + "\n" + fence + "\nb\n" + fence,
			want:  "Step one:",
		},
		{
			name:  "label out of reach",
			reply: "Old label:\n" + fence + "\na\n" + fence + "\none\ntwo\nthree\n" + fence + "\nb\n" + fence,
			want:  model.DefaultDescription,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.reply)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[len(got)-1].Description)
		})
	}
}

func TestParseBulletStartsSuggestion(t *testing.T) {
	reply := strings.Join([]string{
		"Two changes:",
		"- rename the helper",
		"- tighten the bounds check",
		fence + "c",
		"if (i >= n) return;",
		fence,
	}, "\n")

	got := Parse(reply)

	require.Len(t, got, 1, "content-less suggestions opened by earlier lines are discarded")
	assert.Equal(t, "- tighten the bounds check", got[0].Description)
	assert.Equal(t, "c", got[0].Language)
}

func TestParseFenceInsideBlockIsContent(t *testing.T) {
	reply := fence + "markdown\n" + fence + "go\n" + fence

	got := Parse(reply)

	require.Len(t, got, 1)
	assert.Equal(t, []string{fence + "go"}, got[0].Lines)
}

func TestParseFenceWithInfoString(t *testing.T) {
	reply := "Fix:\n" + fence + "go title=\"x\"\nfoo()\n" + fence + "\nthen more prose\n"

	got := Parse(reply)

	require.Len(t, got, 1)
	assert.Equal(t, "Fix:", got[0].Description)
	assert.Equal(t, "go", got[0].Language)
	assert.Equal(t, []string{"foo()"}, got[0].Lines)
}

func TestParseImplicitFallback(t *testing.T) {
	reply := "You should fix the off-by-one in the loop.\nEverything else looks fine.\nAlso REPLACE the magic number."

	got := Parse(reply)

	require.Len(t, got, 2)
	for _, s := range got {
		assert.Len(t, s.Lines, 1)
		assert.Equal(t, s.Description, s.Lines[0])
	}
	assert.Equal(t, "You should fix the off-by-one in the loop.", got[0].Description)
	assert.Equal(t, "Also REPLACE the magic number.", got[1].Description)
}

func TestParseFallbackSkippedWhenFencesPresent(t *testing.T) {
	reply := "Please fix this:\n" + fence + "\nx := 1\n" + fence + "\nAnd remove the debug print."

	got := Parse(reply)

	require.Len(t, got, 1)
	assert.Equal(t, []string{"x := 1"}, got[0].Lines)
}

func TestParseNothingUsable(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("Looks good to me.\nShip it."))
}

func TestParseCRLF(t *testing.T) {
	got := Parse("Fix:\r\n" + fence + "lua\r\nreturn 1\r\n" + fence + "\r\n")

	require.Len(t, got, 1)
	assert.Equal(t, []string{"return 1"}, got[0].Lines)
	assert.Equal(t, "Fix:", got[0].Description)
}

func TestParseImplicitOnly(t *testing.T) {
	got := ParseImplicit("Add a nil check.\n" + fence + "\nfix me\n" + fence)

	require.Len(t, got, 2)
	assert.Equal(t, "Add a nil check.", got[0].Description)
	assert.Equal(t, "fix me", got[1].Description)
}
