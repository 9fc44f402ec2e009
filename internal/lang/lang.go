// Package lang maps language tags to the line patterns used to summarize a
// document for prompt context. The tables are approximations: every line is
// matched on its own, nothing is parsed.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Language is the closed set of languages with pattern tables.
type Language int

const (
	Unknown Language = iota
	Go
	Lua
	Python
	JavaScript
	TypeScript
	Rust
	C
	Cpp
	Java
	Ruby
	Shell
)

var names = map[Language]string{
	Unknown:    "",
	Go:         "go",
	Lua:        "lua",
	Python:     "python",
	JavaScript: "javascript",
	TypeScript: "typescript",
	Rust:       "rust",
	C:          "c",
	Cpp:        "cpp",
	Java:       "java",
	Ruby:       "ruby",
	Shell:      "sh",
}

// String returns the canonical tag, empty for Unknown.
func (l Language) String() string {
	return names[l]
}

var aliases = map[string]Language{
	"go":         Go,
	"golang":     Go,
	"lua":        Lua,
	"python":     Python,
	"py":         Python,
	"python3":    Python,
	"javascript": JavaScript,
	"js":         JavaScript,
	"jsx":        JavaScript,
	"typescript": TypeScript,
	"ts":         TypeScript,
	"tsx":        TypeScript,
	"rust":       Rust,
	"rs":         Rust,
	"c":          C,
	"h":          C,
	"cpp":        Cpp,
	"c++":        Cpp,
	"cc":         Cpp,
	"cxx":        Cpp,
	"hpp":        Cpp,
	"java":       Java,
	"ruby":       Ruby,
	"rb":         Ruby,
	"sh":         Shell,
	"bash":       Shell,
	"zsh":        Shell,
	"shell":      Shell,
}

// Parse maps an editor filetype or fence tag to a Language.
func Parse(tag string) Language {
	return aliases[strings.ToLower(strings.TrimSpace(tag))]
}

// FromPath guesses the language from a file extension.
func FromPath(path string) Language {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return Unknown
	}
	return Parse(ext)
}

// Patterns holds the per-language line patterns. A pattern with a capture
// group contributes the first group; otherwise the trimmed line.
type Patterns struct {
	Imports   []*regexp.Regexp
	Functions []*regexp.Regexp
	Comments  []*regexp.Regexp
	// ImportSkip rejects lines that look like imports but are statements.
	ImportSkip []*regexp.Regexp
}

func re(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var (
	cStyleComments = re(`^\s*//\s?(.*)$`, `^\s*/\*+\s?(.*?)(?:\*/)?$`)
	hashComments   = re(`^\s*#\s?(.*)$`)
)

var tables = map[Language]Patterns{
	Go: {
		Imports:    re(`^\s*import\s+(?:\w+\s+)?"([^"]+)"`, `^\s*(?:\w+\s+)?"([^"]+)"\s*$`),
		ImportSkip: re(`^\s*(?:return|case|go|defer|goto|break|continue|else)\b`),
		Functions:  re(`^\s*func\s+(?:\([^)]*\)\s*)?(\w+)`, `^\s*type\s+(\w+)\s+(?:struct|interface)`),
		Comments:  cStyleComments,
	},
	Lua: {
		Imports:   re(`require\s*\(?\s*['"]([^'"]+)['"]`),
		Functions: re(`^\s*local\s+function\s+([\w.:]+)`, `^\s*function\s+([\w.:]+)`, `^\s*(?:local\s+)?([\w.]+)\s*=\s*function`),
		Comments:  re(`^\s*--\s?(.*)$`),
	},
	Python: {
		Imports:   re(`^\s*import\s+([\w.]+)`, `^\s*from\s+([\w.]+)\s+import`),
		Functions: re(`^\s*(?:async\s+)?def\s+(\w+)`, `^\s*class\s+(\w+)`),
		Comments:  hashComments,
	},
	JavaScript: {
		Imports:   re(`^\s*import\s.*from\s+['"]([^'"]+)['"]`, `require\(\s*['"]([^'"]+)['"]\s*\)`),
		Functions: re(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`, `^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\(`, `^\s*(?:export\s+)?class\s+(\w+)`),
		Comments:  cStyleComments,
	},
	TypeScript: {
		Imports:   re(`^\s*import\s.*from\s+['"]([^'"]+)['"]`, `require\(\s*['"]([^'"]+)['"]\s*\)`),
		Functions: re(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`, `^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\(`, `^\s*(?:export\s+)?(?:abstract\s+)?(?:class|interface|type)\s+(\w+)`),
		Comments:  cStyleComments,
	},
	Rust: {
		Imports:   re(`^\s*use\s+([\w:{}, *]+);`, `^\s*extern\s+crate\s+(\w+)`),
		Functions: re(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)`, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+(\w+)`),
		Comments:  cStyleComments,
	},
	C: {
		Imports:   re(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`),
		Functions: re(`^\s*(?:static\s+|inline\s+|extern\s+)*[\w*]+\s+\**(\w+)\s*\([^;]*$`, `^\s*(?:typedef\s+)?struct\s+(\w+)`),
		Comments:  cStyleComments,
	},
	Cpp: {
		Imports:   re(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`),
		Functions: re(`^\s*(?:static\s+|inline\s+|virtual\s+)*[\w:<>*&]+\s+[*&]*([\w:~]+)\s*\([^;]*$`, `^\s*(?:class|struct)\s+(\w+)`),
		Comments:  cStyleComments,
	},
	Java: {
		Imports:   re(`^\s*import\s+(?:static\s+)?([\w.*]+);`),
		Functions: re(`^\s*(?:(?:public|private|protected|static|final|abstract|synchronized)\s+)+[\w<>\[\], ]+\s+(\w+)\s*\(`, `^\s*(?:(?:public|private|protected|abstract|final)\s+)*(?:class|interface|enum|record)\s+(\w+)`),
		Comments:  cStyleComments,
	},
	Ruby: {
		Imports:   re(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
		Functions: re(`^\s*def\s+([\w.?!]+)`, `^\s*(?:class|module)\s+([\w:]+)`),
		Comments:  hashComments,
	},
	Shell: {
		Imports:   re(`^\s*(?:source|\.)\s+(\S+)`),
		Functions: re(`^\s*function\s+(\w+)`, `^\s*(\w+)\s*\(\)\s*\{?`),
		Comments:  re(`^\s*#([^!].*)$`),
	},
}

// PatternsFor returns the pattern set for l. Unknown languages get an empty set.
func PatternsFor(l Language) Patterns {
	return tables[l]
}
