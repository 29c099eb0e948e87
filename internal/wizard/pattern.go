package wizard

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// RowToken is the filename-pattern token that stands for the row number.
const RowToken = "id"

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// PatternTokens lists the token names used in a filename pattern, in order of
// first appearance.
func PatternTokens(pattern string) []string {
	var tokens []string
	for _, m := range tokenPattern.FindAllStringSubmatch(pattern, -1) {
		if !slices.Contains(tokens, m[1]) {
			tokens = append(tokens, m[1])
		}
	}
	return tokens
}

// UnknownTokens returns the tokens that are neither the row token nor one of
// the template's placeholders.
func UnknownTokens(pattern string, placeholders []string) []string {
	var unknown []string
	for _, tok := range PatternTokens(pattern) {
		if tok != RowToken && !slices.Contains(placeholders, tok) {
			unknown = append(unknown, tok)
		}
	}
	return unknown
}

func unknownTokensError(unknown []string) *UserError {
	quoted := make([]string, len(unknown))
	for i, tok := range unknown {
		quoted[i] = "{{" + tok + "}}"
	}
	return &UserError{Message: fmt.Sprintf("Unknown placeholder in filename pattern: %s", strings.Join(quoted, ", "))}
}
