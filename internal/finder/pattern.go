package finder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// lineComment introduces a trailing comment in any of the mined languages.
var lineComment = regexp.MustCompile(`#|//`)

// Parser post-processes one raw pattern match into zero or more version
// identifiers, e.g. expanding a textual range. Parsers must be pure: the
// same input always yields the same identifiers.
type Parser func(match string) []string

// PatternFinder scans a fixed list of files for a regular expression and
// collects the captured version identifiers.
type PatternFinder struct {
	// Paths are file paths relative to the working tree root. Missing files
	// are skipped: paths move across a project's history and the finder
	// lists every historical location.
	Paths []string

	// Pattern may have any number of capturing groups; all non-empty
	// captures of every match are collected. With no groups the whole match
	// is collected.
	Pattern *regexp.Regexp

	// Parser optionally expands each raw capture. Nil keeps captures as-is.
	Parser Parser

	// Ignore removes known-bad self-declarations from the result.
	Ignore []string
}

// scan extracts version identifiers from the finder's files under root.
//
// Extraction is two-pass per line: a line must match the pattern, then has
// its trailing line comment ("#" or "//") stripped and is matched again, so
// that version-looking tokens living inside comments are excluded. The
// result is independent of match order.
func (f PatternFinder) scan(root string) (map[string]bool, error) {
	versions := map[string]bool{}
	for _, path := range f.Paths {
		data, err := os.ReadFile(filepath.Join(root, path))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("finder: read %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if !f.Pattern.MatchString(line) {
				continue
			}
			line = lineComment.Split(line, 2)[0]
			for _, match := range f.Pattern.FindAllStringSubmatch(line, -1) {
				for _, capture := range captures(match) {
					if f.Parser != nil {
						for _, v := range f.Parser(capture) {
							versions[v] = true
						}
					} else {
						versions[capture] = true
					}
				}
			}
		}
	}
	for _, v := range f.Ignore {
		delete(versions, v)
	}
	return versions, nil
}

// captures returns the non-empty capture groups of one match, or the whole
// match when the pattern has no groups.
func captures(match []string) []string {
	if len(match) == 1 {
		return match
	}
	var out []string
	for _, group := range match[1:] {
		if group != "" {
			out = append(out, group)
		}
	}
	return out
}

// SplitFields is a Parser that trims the match and splits it on whitespace.
// Some projects declare several versions inside one quoted string.
func SplitFields(match string) []string {
	return strings.Fields(match)
}

// ElixirRange is a Parser expanding an Elixir range operator: "3..5"
// becomes 3, 4 and 5. Values without a range operator pass through
// unchanged; malformed ranges yield nothing.
func ElixirRange(match string) []string {
	lo, hi, ok := strings.Cut(match, "..")
	if !ok {
		return []string{match}
	}
	first, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil
	}
	last, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || last < first {
		return nil
	}
	out := make([]string, 0, last-first+1)
	for v := first; v <= last; v++ {
		out = append(out, strconv.Itoa(v))
	}
	return out
}

// Parsers maps configuration names to parser implementations.
var Parsers = map[string]Parser{
	"fields":       SplitFields,
	"elixir_range": ElixirRange,
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
