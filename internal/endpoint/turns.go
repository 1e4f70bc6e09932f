package endpoint

import (
	"strings"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

// Roles of a conversation turn
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the per-conflict input shared by every endpoint
type Request struct {
	// Instructions tell the model how to apply the patch
	Instructions string
	// Message holds the delimited patch and code sections
	Message string
	// DiffBlock is the repository diff excerpt, or empty
	DiffBlock string
	// Patch and Code are sent as-is to endpoints that take structured input
	Patch string
	Code  string
}

// Turn is one message of a conversation
type Turn struct {
	Role    string
	Content string
}

// buildTurns lays out the conversation for one variant: an optional system
// turn carrying the instructions, then the user turns
func buildTurns(req *Request, ctx config.PromptContext) []Turn {
	turns := make([]Turn, 0, 4)
	if ctx.WithSystemMessage {
		turns = append(turns, Turn{Role: RoleSystem, Content: req.Instructions})
	} else {
		turns = append(turns, Turn{Role: RoleUser, Content: req.Instructions})
	}
	if !ctx.NoDiff && req.DiffBlock != "" {
		turns = append(turns, Turn{Role: RoleUser, Content: req.DiffBlock})
	}
	turns = append(turns, Turn{Role: RoleUser, Content: req.Message})
	return mergeTurns(turns)
}

// mergeTurns joins consecutive turns of the same role with a blank line, so
// the result alternates roles. Empty turns are dropped.
func mergeTurns(turns []Turn) []Turn {
	var out []Turn
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content += "\n\n" + t.Content
			continue
		}
		out = append(out, t)
	}
	return out
}

// splitSystem separates a leading system turn from the rest
func splitSystem(turns []Turn) (string, []Turn) {
	if len(turns) > 0 && turns[0].Role == RoleSystem {
		return turns[0].Content, turns[1:]
	}
	return "", turns
}

// flatten renders the conversation as a single prompt
func flatten(turns []Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.Content
	}
	return strings.Join(parts, "\n\n")
}
