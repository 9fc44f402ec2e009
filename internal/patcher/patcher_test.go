package patcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/pair/model"
)

func TestPreviewReplaceBlock(t *testing.T) {
	doc := []string{"a", "b", "foo(x)", "c"}
	s := model.Suggestion{Description: "Fix foo:", Lines: []string{"foo(x)", "  return x+1"}}

	out, err := Preview("main.lua", doc, s, model.Range{Start: 3, End: 4})
	require.NoError(t, err)

	assert.Equal(t, "--- a/main.lua\n+++ b/main.lua\n@@ -3,2 +3,2 @@ Fix foo:\n-foo(x)\n-c\n+foo(x)\n+  return x+1\n", out)
}

func TestPreviewDefaultDescriptionHasNoSection(t *testing.T) {
	s := model.Suggestion{Description: model.DefaultDescription, Lines: []string{"x"}}

	out, err := Preview("f", []string{"y"}, s, model.Range{Start: 1, End: 1})
	require.NoError(t, err)

	assert.Regexp(t, `(?m)^@@ -1(,1)? \+1(,1)? @@$`, out)
}

func TestPreviewClampsPastEnd(t *testing.T) {
	doc := []string{"a", "b"}
	s := model.Suggestion{Description: "tail", Lines: []string{"c"}}

	fd := FileDiff("f", doc, s, model.Range{Start: 5, End: 6})

	require.Len(t, fd.Hunks, 1)
	assert.Equal(t, int32(0), fd.Hunks[0].OrigLines)
	assert.Equal(t, int32(2), fd.Hunks[0].OrigStartLine)
	assert.Equal(t, int32(3), fd.Hunks[0].NewStartLine)
	assert.Equal(t, Stats{Added: 1}, Count(fd))
}

func TestPreviewDeletion(t *testing.T) {
	doc := []string{"a", "b", "c"}
	s := model.Suggestion{Description: "drop"}

	fd := FileDiff("f", doc, s, model.Range{Start: 2, End: 2})

	assert.Equal(t, "-b\n", string(fd.Hunks[0].Body))
	assert.Equal(t, int32(1), fd.Hunks[0].NewStartLine)
	assert.Equal(t, int32(0), fd.Hunks[0].NewLines)
	assert.Equal(t, Stats{Removed: 1}, Count(fd))
}

func TestCountTextRenderedPreview(t *testing.T) {
	doc := []string{"a", "b", "c"}
	s := model.Suggestion{Description: "swap", Lines: []string{"x", "y", "z"}}
	out, err := Preview("f", doc, s, model.Range{Start: 2, End: 3})
	require.NoError(t, err)

	st, err := CountText(out)
	require.NoError(t, err)
	assert.Equal(t, Stats{Added: 3, Removed: 2}, st)
	assert.Equal(t, "+3 -2", st.String())
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		in         model.Range
		total      int
		start, end int
	}{
		{model.Range{Start: 2, End: 3}, 5, 2, 3},
		{model.Range{Start: 4, End: 9}, 5, 4, 5},
		{model.Range{Start: 0, End: 1}, 5, 1, 1},
		{model.Range{Start: 7, End: 7}, 5, 6, 5},
		{model.Range{Start: 1, End: 1}, 0, 1, 0},
	}
	for _, tt := range tests {
		start, end := clampRange(tt.in, tt.total)
		assert.Equal(t, []int{tt.start, tt.end}, []int{start, end}, "%+v", tt.in)
	}
}
