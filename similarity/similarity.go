// Package similarity scores how much one text differs from another.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns the normalized edit distance between a and b in [0,1]:
// the Levenshtein distance divided by the length of the longer string.
// 0 means identical, 1 means entirely different. Lengths are measured in
// runes to keep the ratio in range for multi-byte text.
//
// When both strings are empty there is no basis for comparison and the
// result is 1.
func Diff(a, b string) float64 {
	if a == b {
		if a == "" {
			return 1
		}
		return 0
	}

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	return float64(dmp.DiffLevenshtein(diffs)) / float64(maxLen)
}

// LineChanges returns how many lines were added and removed going from
// old to new, using a line-level diff.
func LineChanges(oldText, newText string) (additions, deletions int) {
	if oldText == newText {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lineArray)

	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += n
		case diffmatchpatch.DiffDelete:
			deletions += n
		}
	}
	return additions, deletions
}

// countLines counts the lines in a diff chunk. A trailing newline does not
// start an extra line.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
