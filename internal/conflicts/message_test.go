package conflicts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTrailer(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"before conflicts block": {
			in:   "Subject\n\nBody\n\n# Conflicts:\n#\tfile.c\n",
			want: "Subject\n\nBody\n\nAssisted-by: synthmerge\n\n# Conflicts:\n#\tfile.c\n",
		},
		"joins trailer block": {
			in:   "Subject\n\nBody\n\nSigned-off-by: A <a@example.com>\n\n# Conflicts:\n#\tfile.c\n",
			want: "Subject\n\nBody\n\nSigned-off-by: A <a@example.com>\nAssisted-by: synthmerge\n\n# Conflicts:\n#\tfile.c\n",
		},
		"after cherry-pick note": {
			in:   "Subject\n\nReviewed-by: B\n(cherry picked from commit 0123abcd)\n",
			want: "Subject\n\nReviewed-by: B\n(cherry picked from commit 0123abcd)\nAssisted-by: synthmerge\n",
		},
		"subject only": {
			in:   "Subject",
			want: "Subject\n\nAssisted-by: synthmerge\n",
		},
		"empty": {
			in:   "",
			want: "Assisted-by: synthmerge\n",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, changed := AddTrailer(tc.in)
			assert.True(t, changed)
			assert.Equal(t, tc.want, got)

			again, changed := AddTrailer(got)
			assert.False(t, changed)
			assert.Equal(t, got, again)
		})
	}
}

func TestAnnotateMessageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MERGE_MSG")
	require.NoError(t, os.WriteFile(path, []byte("Merge\n"), 0o600))

	changed, err := AnnotateMessageFile(path)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = AnnotateMessageFile(path)
	require.NoError(t, err)
	assert.False(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Merge\n\nAssisted-by: synthmerge\n", string(data))

	_, err = AnnotateMessageFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
