package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sokinpui/pair/internal/lang"
	"github.com/sokinpui/pair/model"
)

const memoTTL = 10 * time.Minute

// derived is the pattern-table output for one (language, content) pair.
type derived struct {
	imports   []string
	functions []string
	comments  []string
}

// Extractor builds DocumentContext snapshots. Derived lists are memoized by
// content hash, so repeated snapshots of an unchanged buffer skip the scan.
type Extractor struct {
	memo *ttlcache.Cache[string, derived]
}

// New creates an Extractor with its own memo cache.
func New() *Extractor {
	c := ttlcache.New[string, derived](
		ttlcache.WithTTL[string, derived](memoTTL),
		ttlcache.WithDisableTouchOnHit[string, derived](),
	)
	go c.Start()
	return &Extractor{memo: c}
}

// Close stops the memo expiration loop.
func (e *Extractor) Close() {
	e.memo.Stop()
}

// Extract snapshots a document given as one text blob.
func (e *Extractor) Extract(filename, text, languageTag string) model.DocumentContext {
	return e.ExtractLines(filename, SplitLines(text), languageTag)
}

// ExtractLines snapshots a document given as lines.
func (e *Extractor) ExtractLines(filename string, lines []string, languageTag string) model.DocumentContext {
	content := strings.Join(lines, "\n")
	l := lang.Parse(languageTag)
	d := e.derive(l, lines, content)

	return model.DocumentContext{
		Filename:  trimFilename(filename),
		Language:  strings.TrimSpace(languageTag),
		Content:   content,
		LineCount: len(lines),
		Size:      len(content),
		Imports:   d.imports,
		Functions: d.functions,
		Comments:  d.comments,
	}
}

func (e *Extractor) derive(l lang.Language, lines []string, content string) derived {
	if l == lang.Unknown {
		return derived{}
	}
	sum := sha256.Sum256([]byte(l.String() + "\x00" + content))
	key := hex.EncodeToString(sum[:])
	if item := e.memo.Get(key); item != nil {
		return item.Value()
	}

	p := lang.PatternsFor(l)
	var d derived
	for _, line := range lines {
		if m, ok := matchAny(p.Imports, line); ok && !skipped(p.ImportSkip, line) {
			d.imports = append(d.imports, m)
		}
		if m, ok := matchAny(p.Functions, line); ok {
			d.functions = append(d.functions, m)
		}
		if m, ok := matchAny(p.Comments, line); ok {
			d.comments = append(d.comments, m)
		}
	}
	e.memo.Set(key, d, ttlcache.DefaultTTL)
	return d
}

// matchAny tries patterns in declared order and stops at the first hit.
func matchAny(patterns []*regexp.Regexp, line string) (string, bool) {
	for _, p := range patterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return strings.TrimSpace(m[1]), true
		}
		return strings.TrimSpace(line), true
	}
	return "", false
}

func skipped(patterns []*regexp.Regexp, line string) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func trimFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

// SplitLines splits text into lines, dropping the newline that terminates
// the last line. Empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
