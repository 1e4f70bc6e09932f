// Package conflicts finds diff3 conflict regions in unmerged files and writes
// resolved candidates back next to them.
package conflicts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

// ToolName attributes inserted resolutions and the commit message trailer
const ToolName = "synthmerge"

// ParseError reports a malformed conflict block or an unreadable file
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

type markerKind int

const (
	plainLine markerKind = iota
	openMarker
	baseMarker
	separatorMarker
	endMarker
)

// markers classifies lines against conflict markers of one width
type markers struct {
	size       int
	open       *regexp.Regexp
	base       *regexp.Regexp
	separator  *regexp.Regexp
	end        *regexp.Regexp
	annotation string
}

// nestedMarker matches a marker of at least the default width
var nestedMarker = regexp.MustCompile(`^(?:<{7,}|\|{7,}|={7,}|>{7,})(?:[ \t].*)?$`)

func newMarkers(size int) *markers {
	run := func(c string) string {
		return regexp.QuoteMeta(strings.Repeat(c, size))
	}
	return &markers{
		size:       size,
		open:       regexp.MustCompile(`^` + run("<") + `(?:[ \t].*)?$`),
		base:       regexp.MustCompile(`^` + run("|") + `(?:[ \t].*)?$`),
		separator:  regexp.MustCompile(`^` + run("=") + `$`),
		end:        regexp.MustCompile(`^` + run(">") + `(?:[ \t].*)?$`),
		annotation: strings.Repeat("|", size) + " " + ToolName + ":",
	}
}

func trimEOL(line string) string {
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
}

func (m *markers) kind(line string) markerKind {
	line = trimEOL(line)
	switch {
	case m.open.MatchString(line):
		return openMarker
	case m.base.MatchString(line):
		return baseMarker
	case m.separator.MatchString(line):
		return separatorMarker
	case m.end.MatchString(line):
		return endMarker
	}
	return plainLine
}

// isAnnotation reports whether a base marker line was inserted by a previous write-back
func (m *markers) isAnnotation(line string) bool {
	return strings.HasPrefix(trimEOL(line), m.annotation)
}

// attribution renders the marker line introducing one resolved candidate
func (m *markers) attribution(model string) string {
	return m.annotation + " " + model + "\n"
}

// block holds the line indexes of one conflict region
type block struct {
	open, base, baseEnd, separator, end int
}

// Parse extracts every diff3 conflict of a file. markerSize is the file's
// conflict-marker-size and contextWidth the number of lines captured on each
// side of a conflict.
func Parse(path, content string, markerSize, contextWidth int) ([]*models.Conflict, error) {
	if markerSize < 1 {
		markerSize = models.DefaultMarkerSize
	}
	m := newMarkers(markerSize)
	lines := helpers.SplitLines(content)
	kinds := make([]markerKind, len(lines))
	for i, line := range lines {
		kinds[i] = m.kind(line)
	}

	blocks, err := findBlocks(path, lines, kinds, m)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	plain := plainMask(lines, kinds)
	conflicts := make([]*models.Conflict, 0, len(blocks))
	for _, b := range blocks {
		head, nrHead, err := extractContext(path, lines, plain, max(0, b.open-contextWidth), b.open)
		if err != nil {
			return nil, err
		}
		tail, nrTail, err := extractContext(path, lines, plain, b.end+1, min(len(lines), b.end+1+contextWidth))
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, &models.Conflict{
			FilePath:           path,
			Local:              strings.Join(lines[b.open+1:b.base], ""),
			Base:               strings.Join(lines[b.base+1:b.baseEnd], ""),
			Remote:             strings.Join(lines[b.separator+1:b.end], ""),
			HeadContext:        head,
			TailContext:        tail,
			StartLine:          b.open + 1,
			RemoteStart:        b.separator - b.open,
			NrHeadContextLines: nrHead,
			NrTailContextLines: nrTail,
			MarkerSize:         markerSize,
		})
	}
	return conflicts, nil
}

// findBlocks locates conflict regions, requiring open < base < separator < end
func findBlocks(path string, lines []string, kinds []markerKind, m *markers) ([]block, error) {
	var blocks []block
	for i := 0; i < len(lines); i++ {
		if kinds[i] != openMarker {
			continue
		}
		b := block{open: i, base: -1, baseEnd: -1, separator: -1, end: -1}
	scan:
		for k := i + 1; k < len(lines); k++ {
			switch kinds[k] {
			case openMarker:
				return nil, &ParseError{File: path, Line: k + 1, Reason: "nested conflict start marker"}
			case baseMarker:
				switch {
				case b.base < 0 && b.separator < 0:
					b.base = k
				case b.separator < 0 && m.isAnnotation(lines[k]):
					if b.baseEnd < 0 {
						b.baseEnd = k
					}
				default:
					return nil, &ParseError{File: path, Line: k + 1, Reason: "unexpected base marker"}
				}
			case separatorMarker:
				if b.base < 0 {
					return nil, &ParseError{File: path, Line: k + 1, Reason: "separator before base marker (merge.conflictStyle must be diff3)"}
				}
				if b.separator >= 0 {
					return nil, &ParseError{File: path, Line: k + 1, Reason: "duplicate separator marker"}
				}
				b.separator = k
			case endMarker:
				if b.separator < 0 {
					return nil, &ParseError{File: path, Line: k + 1, Reason: "end marker before separator"}
				}
				b.end = k
				break scan
			}
		}
		if b.end < 0 {
			return nil, &ParseError{File: path, Line: i + 1, Reason: "unterminated conflict"}
		}
		if b.baseEnd < 0 {
			b.baseEnd = b.separator
		}
		blocks = append(blocks, b)
		i = b.end
	}
	return blocks, nil
}

// plainMask marks the lines that read as ordinary text: lines outside any
// conflict plus the local side of conflicts. Marker lines, base and remote
// sides are masked out.
func plainMask(lines []string, kinds []markerKind) []bool {
	const (
		outside = iota
		local
		base
		remote
	)
	plain := make([]bool, len(lines))
	state := outside
	for i := range lines {
		switch kinds[i] {
		case openMarker:
			state = local
			continue
		case baseMarker:
			if state == local || state == base {
				state = base
				continue
			}
		case separatorMarker:
			if state == base {
				state = remote
				continue
			}
		case endMarker:
			if state != outside {
				state = outside
				continue
			}
		}
		plain[i] = state == outside || state == local
	}
	return plain
}

// extractContext joins the plain lines of [from, to) and rejects markers that
// survived the masking
func extractContext(path string, lines []string, plain []bool, from, to int) (string, int, error) {
	var sb strings.Builder
	n := 0
	for i := from; i < to; i++ {
		if !plain[i] {
			continue
		}
		if nestedMarker.MatchString(trimEOL(lines[i])) {
			return "", 0, &ParseError{File: path, Line: i + 1, Reason: "nested markers in conflict context"}
		}
		sb.WriteString(lines[i])
		n++
	}
	return sb.String(), n, nil
}
