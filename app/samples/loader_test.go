package samples

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/docclass/lib/classifier"
)

func writeSample(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "greeting.txt", "hello there friend\nhi buddy\n")
	writeSample(t, dir, "farewell.txt", "goodbye friend\n\n# a comment, not a document\nsee you later\n")
	writeSample(t, dir, "notes.md", "not a samples file\n")

	c, err := classifier.New(classifier.Options{})
	require.NoError(t, err)

	count, err := (&Loader{Dir: dir}).Load(c)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "two docs per category, comment and blank skipped, .md ignored")

	stats := c.Stats()
	assert.ElementsMatch(t, []string{"greeting", "farewell"}, stats.Categories)
	assert.Equal(t, 2, stats.DocCount["greeting"])
	assert.Equal(t, 2, stats.DocCount["farewell"])

	top, ok := c.Categorize("hello friend")
	require.True(t, ok)
	assert.Equal(t, "greeting", top)
}

func TestLoader_EmptyDir(t *testing.T) {
	c, err := classifier.New(classifier.Options{})
	require.NoError(t, err)

	count, err := (&Loader{Dir: t.TempDir()}).Load(c)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoader_MissingDir(t *testing.T) {
	c, err := classifier.New(classifier.Options{})
	require.NoError(t, err)

	_, err = (&Loader{Dir: filepath.Join(t.TempDir(), "nope")}).Load(c)
	require.Error(t, err)
}

func TestLoader_UnreadableFileDoesNotStopLoad(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores file permissions")
	}

	dir := t.TempDir()
	writeSample(t, dir, "greeting.txt", "hello there\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("nope"), 0o000))

	c, err := classifier.New(classifier.Options{})
	require.NoError(t, err)

	count, err := (&Loader{Dir: dir}).Load(c)
	require.Error(t, err, "unreadable file reported")
	assert.Equal(t, 1, count, "readable files still applied")
	assert.Contains(t, err.Error(), "secret.txt")
}
