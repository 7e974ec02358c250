package ai

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)

	require.NoError(t, store.AppendTurn(ctx, "s1", "Hello", "Hi <there> & welcome"))
	require.NoError(t, store.AppendTurn(ctx, "s1", "Bye", "See you\nsoon"))

	history, err = store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"User: Hello",
		"AI: Hi <there> & welcome",
		"User: Bye",
		"AI: See you\nsoon",
	}, history)

	recent, err := store.Recent(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AI: See you\nsoon"}, recent)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.AppendTurn(ctx, "s1", "q", "a"))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	history, err := second.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"User: q", "AI: a"}, history)
}

func TestFileStore_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	store, err := NewFileStore(dir, WithFileLogger(zerolog.New(&logs)))
	require.NoError(t, err)

	content := `{"role":"user","content":"q"}
not json

{"role":"ai","content":"a"}
{"role":"system","content":"note"}
`
	require.NoError(t, os.WriteFile(store.getFilePath("s1"), []byte(content), 0o644))

	history, err := store.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"User: q", "AI: a", "[system]: note"}, history)
	assert.Contains(t, logs.String(), "skipping malformed history line")
}

func TestFileStore_SessionIDsWithSeparatorsStayDistinct(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "history")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "a/x", "my secret", "noted"))
	require.NoError(t, store.AppendTurn(ctx, "../../escape", "q", "a"))

	other, err := store.GetHistory(ctx, "b/x")
	require.NoError(t, err)
	assert.Empty(t, other)

	history, err := store.GetHistory(ctx, "a/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"User: my secret", "AI: noted"}, history)

	// 所有文件都在 baseDir 内
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "history", entries[0].Name())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFileStore_ClearHistory(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", "q", "a"))
	require.NoError(t, store.ClearHistory(ctx, "s1"))
	require.NoError(t, store.ClearHistory(ctx, "s1"), "clearing twice is not an error")

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
