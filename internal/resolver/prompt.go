package resolver

import (
	"fmt"
	"strings"

	"github.com/prajaktaborse1234/synthmerge/internal/endpoint"
	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/internal/textdiff"
	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

const instructionsTemplate = `Apply the PATCH between %[1]s%[2]s to the CODE between %[3]s%[4]s.

Write the reasoning about the PATCH focusing only on the modifications done in the + or - lines of the PATCH and don't make other modifications to the CODE.

FINALLY write the final PATCHED CODE between %[5]s%[6]s instead of markdown fences.

Rewrite the %[7]d lines after %[3]s and the %[8]d lines before %[4]s exactly the same, including all empty lines.`

// Instructions tells the model how many context lines it has to echo back
func Instructions(c *models.Conflict) string {
	return fmt.Sprintf(instructionsTemplate,
		endpoint.PatchStart, endpoint.PatchEnd,
		endpoint.CodeStart, endpoint.CodeEnd,
		endpoint.PatchedCodeStart, endpoint.PatchedCodeEnd,
		c.NrHeadContextLines, c.NrTailContextLines)
}

// Patch is the change the remote side made to the base, framed by the conflict context
func Patch(c *models.Conflict, algorithm textdiff.Algorithm, contextWidth int) string {
	base := c.HeadContext + c.Base + c.TailContext
	remote := c.HeadContext + c.Remote + c.TailContext
	return textdiff.DiffWith(algorithm, base, remote, contextWidth)
}

// Code is the local side the patch has to be applied to
func Code(c *models.Conflict) string {
	return c.HeadContext + c.Local + c.TailContext
}

// Message wraps the patch and the code in their delimiters
func Message(patch, code string) string {
	var sb strings.Builder
	sb.WriteString(endpoint.PatchStart + "\n")
	sb.WriteString(patch)
	sb.WriteString(endpoint.PatchEnd + "\n\n")
	sb.WriteString(endpoint.CodeStart + "\n")
	sb.WriteString(code)
	sb.WriteString(endpoint.CodeEnd + "\n")
	return sb.String()
}

// DiffBlock presents the diff of the commit being merged as extra context
func DiffBlock(diff string) string {
	return fmt.Sprintf("The PATCH originates from the DIFF between %s%s.\n\n%s\n%s%s",
		endpoint.DiffStart, endpoint.DiffEnd,
		endpoint.DiffStart, helpers.EnsureNewline(diff), endpoint.DiffEnd)
}

// BuildRequest assembles the endpoint request of a conflict. The repository
// diff is attached only when it mentions the conflicted file.
func BuildRequest(c *models.Conflict, gitDiff string, algorithm textdiff.Algorithm, patchContext int) *endpoint.Request {
	patch := Patch(c, algorithm, patchContext)
	code := Code(c)
	req := &endpoint.Request{
		Instructions: Instructions(c),
		Message:      Message(patch, code),
		Patch:        patch,
		Code:         code,
	}
	if gitDiff != "" && strings.Contains(gitDiff, c.FilePath) {
		req.DiffBlock = DiffBlock(gitDiff)
	}
	return req
}
