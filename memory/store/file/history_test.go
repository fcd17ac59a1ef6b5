package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/memory/store/file"
)

func TestHistory_EmptyLoad(t *testing.T) {
	h, err := file.NewHistory(filepath.Join(t.TempDir(), "data", "history.txt"))
	require.NoError(t, err)

	turns, err := h.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistory_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h, err := file.NewHistory(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	turns, err := h.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.txt")

	h, err := file.NewHistory(path)
	require.NoError(t, err)

	want := []core.Turn{
		{Speaker: "alice", Text: "hello"},
		{Speaker: core.SpeakerAssistant, Text: "Oh. It's you."},
		{Speaker: "bob", Text: "two\nlines and a \\n literal"},
		{Speaker: "carol", Text: "ratio: 3: 1\r\n"},
		{Speaker: "dave", Text: ""},
	}
	for _, turn := range want {
		require.NoError(t, h.Append(ctx, turn))
	}

	reopened, err := file.NewHistory(path)
	require.NoError(t, err)
	got, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice: hello\n", string(data[:len("alice: hello\n")]))
}

func TestHistory_RejectsUnparseableSpeaker(t *testing.T) {
	h, err := file.NewHistory(filepath.Join(t.TempDir(), "history.txt"))
	require.NoError(t, err)

	err = h.Append(context.Background(), core.Turn{Speaker: "eve: admin", Text: "hi"})
	assert.ErrorIs(t, err, file.ErrInvalidSpeaker)

	turns, err := h.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistory_Clear(t *testing.T) {
	ctx := context.Background()
	h, err := file.NewHistory(filepath.Join(t.TempDir(), "history.txt"))
	require.NoError(t, err)

	require.NoError(t, h.Append(ctx, core.Turn{Speaker: "alice", Text: "hello"}))
	require.NoError(t, h.Clear(ctx))

	turns, err := h.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistory_IgnoresTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice: hello\nbob: half writ"), 0o644))

	h, err := file.NewHistory(path)
	require.NoError(t, err)
	turns, err := h.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Turn{{Speaker: "alice", Text: "hello"}}, turns)
}

func TestHistory_AppendAfterTornFinalLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice: hello\nbob: half writ"), 0o644))

	h, err := file.NewHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.Append(ctx, core.Turn{Speaker: "carol", Text: "next"}))

	turns, err := h.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Turn{
		{Speaker: "alice", Text: "hello"},
		{Speaker: "carol", Text: "next"},
	}, turns)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice: hello\ncarol: next\n", string(data))
}

func TestHistory_CorruptLineIsStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	require.NoError(t, os.WriteFile(path, []byte("no separator here\n"), 0o644))

	h, err := file.NewHistory(path)
	require.NoError(t, err)
	_, err = h.LoadAll(context.Background())
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestHistory_WriteFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.txt")
	h, err := file.NewHistory(path)
	require.NoError(t, err)

	// Replace the file with a directory so the append cannot open it.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	err = h.Append(context.Background(), core.Turn{Speaker: "alice", Text: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
}
