// Package tokens approximates token counts by whitespace-separated words.
// Every budget in the engine is measured this way.
package tokens

import (
	"strings"
	"unicode"
)

// Count returns the number of whitespace-separated tokens in text.
func Count(text string) int {
	return len(strings.Fields(text))
}

// Trim keeps the first max tokens of text joined by single spaces.
// max <= 0 yields an empty string.
func Trim(text string, max int) string {
	if max <= 0 {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) > max {
		fields = fields[:max]
	}
	return strings.Join(fields, " ")
}

// TrimWithFloor is Trim, except a budget below floor is replaced by fallback.
// A budget of 3 with floor 10 and fallback 50 trims to 50 tokens.
func TrimWithFloor(text string, budget, floor, fallback int) string {
	if budget < floor {
		budget = fallback
	}
	return Trim(text, budget)
}

// Head returns text up to the end of its n-th token, preserving the original
// spacing and line breaks. Text with n or fewer tokens is returned unchanged.
func Head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	inToken := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		switch {
		case !space && !inToken:
			inToken = true
		case space && inToken:
			inToken = false
			seen++
			if seen == n {
				return text[:i]
			}
		}
	}
	return text
}

// Cap cuts text to cutTo tokens when it holds more than limit tokens.
func Cap(text string, limit, cutTo int) string {
	if Count(text) <= limit {
		return text
	}
	return Head(text, cutTo)
}
