package resolver

import (
	"fmt"
	"strings"

	"github.com/prajaktaborse1234/synthmerge/internal/endpoint"
	"github.com/prajaktaborse1234/synthmerge/internal/models"
)

// ValidationError is a candidate that does not fit around the conflict
// context; it is discarded and never retried
type ValidationError struct {
	Label  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Label, e.Reason)
}

// ParseResponse returns the text of every patched code block of a raw
// answer. An answer without blocks, or with an unterminated one, is an error.
func ParseResponse(response string) ([]string, error) {
	start := endpoint.PatchedCodeStart + "\n"
	var blocks []string
	for rest := response; ; {
		i := strings.Index(rest, start)
		if i < 0 {
			break
		}
		rest = rest[i+len(start):]
		j := strings.Index(rest, endpoint.PatchedCodeEnd)
		if j < 0 {
			return nil, fmt.Errorf("missing %s", endpoint.PatchedCodeEnd)
		}
		blocks = append(blocks, rest[:j])
		rest = rest[j+len(endpoint.PatchedCodeEnd):]
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no %s block in response", endpoint.PatchedCodeStart)
	}
	return blocks, nil
}

// Validate strips the head and tail context off a candidate and returns the
// resolved text, which is empty or newline terminated
func Validate(c *models.Conflict, label, candidate string) (string, error) {
	if !strings.HasPrefix(candidate, c.HeadContext) {
		return "", &ValidationError{Label: label, Reason: "doesn't start with head context"}
	}
	rest := candidate[len(c.HeadContext):]
	if !strings.HasSuffix(rest, c.TailContext) {
		return "", &ValidationError{Label: label, Reason: "doesn't end with tail context"}
	}
	content := rest[:len(rest)-len(c.TailContext)]
	if content != "" && !strings.HasSuffix(content, "\n") {
		return "", &ValidationError{Label: label, Reason: "resolved content is not newline terminated"}
	}
	return content, nil
}
