package conflicts

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Trailer is appended to the commit message of a merge resolved with help
const Trailer = "Assisted-by: " + ToolName

var trailerLine = regexp.MustCompile(`^(?:[A-Za-z0-9][A-Za-z0-9-]*-by: .*|\(cherry picked from commit [0-9a-f]+\))$`)

// AddTrailer inserts Trailer into a commit message. The trailer goes after the
// last non-blank line preceding the "# Conflicts:" comment block; it joins an
// existing trailer block or starts a new paragraph. The second return value is
// false when the message already carries the trailer.
func AddTrailer(message string) (string, bool) {
	lines := strings.Split(message, "\n")
	limit := len(lines)
	for i, line := range lines {
		if strings.TrimSpace(line) == Trailer {
			return message, false
		}
		if limit == len(lines) && strings.HasPrefix(line, "# Conflicts:") {
			limit = i
		}
	}

	last := limit - 1
	for last >= 0 && strings.TrimSpace(lines[last]) == "" {
		last--
	}

	insert := []string{Trailer}
	switch {
	case last < 0:
		if limit == len(lines) && message == "" {
			return Trailer + "\n", true
		}
	case !trailerLine.MatchString(strings.TrimRight(lines[last], "\r")):
		insert = []string{"", Trailer}
	}

	at := last + 1
	out := make([]string, 0, len(lines)+len(insert))
	out = append(out, lines[:at]...)
	out = append(out, insert...)
	out = append(out, lines[at:]...)
	result := strings.Join(out, "\n")
	if at == len(lines) {
		result += "\n"
	}
	return result, true
}

// AnnotateMessageFile adds Trailer to the message file at path
func AnnotateMessageFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read %s", path)
	}
	updated, changed := AddTrailer(string(data))
	if !changed {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat %s", path)
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, errors.Wrapf(err, "failed to write %s", path)
	}
	return true, nil
}
