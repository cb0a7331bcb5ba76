package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkFilePacksParagraphs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")

	big := strings.Repeat("x", maxIngestChunk-100)
	content := "first paragraph\n\n" + big + "\n\nlast paragraph\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	chunks, err := chunkFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2, "the oversized paragraph forces a split")
	assert.Contains(t, chunks[0], "first paragraph")
	assert.Contains(t, chunks[1], "last paragraph")
}

func TestChunkFileEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(path, []byte("\n\n\n"), 0o644))

	chunks, err := chunkFile(path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestResolvePromptPrefersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))

	estimateFile = path
	defer func() { estimateFile = "" }()

	prompt, err := resolvePrompt([]string{"from", "args"})
	require.NoError(t, err)
	assert.Equal(t, "from file", prompt)
}
