package helpers

import (
	"strings"
)

// TruncateString truncates a string to the specified length and adds an ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SplitLines splits text into lines, each keeping its trailing newline.
// The last element has no newline when the text does not end with one.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// EnsureNewline appends a newline to non-empty text that lacks one
func EnsureNewline(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// SingleLine collapses a multi-line message for one-line log output
func SingleLine(message string) string {
	message = strings.TrimSpace(message)
	return strings.Join(strings.Fields(strings.ReplaceAll(message, "\n", " ")), " ")
}
