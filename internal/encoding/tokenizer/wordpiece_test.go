package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordPiece(t *testing.T) {
	vocabContent := []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
		"hello", "world", "hi", "how", "are", "you",
		"##lo", "##ld", "##i", "!",
	}
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "en.vocab.txt"), []byte(strings.Join(vocabContent, "\n")+"\n"), 0o644)
	require.NoError(t, err)

	seg, err := Load("wordpiece", "en", LoadOptions{ModelDir: dir})
	require.NoError(t, err)
	require.Equal(t, "wordpiece", seg.Backend())

	t.Run("BasicTokenize", func(t *testing.T) {
		require.Equal(t, []string{"hello", "world", "!"}, seg.Segment("Hello world!"))
	})

	t.Run("WordPieceSplit", func(t *testing.T) {
		require.Equal(t, []string{"hello", "##ld"}, seg.Segment("hellold"))
	})

	t.Run("UNKHandling", func(t *testing.T) {
		require.Equal(t, []string{"[UNK]"}, seg.Segment("unknownword"))
	})

	t.Run("Normalization", func(t *testing.T) {
		require.Equal(t, []string{"hello"}, seg.Segment("Héllo"))
	})

	t.Run("NeverSplit", func(t *testing.T) {
		require.Equal(t, []string{"[CLS]", "hi", "[SEP]"}, seg.Segment("[CLS] hi [SEP]"))
	})
}

func TestWordPiece_NotInstalled(t *testing.T) {
	_, err := Load("wordpiece", "de", LoadOptions{ModelDir: t.TempDir()})
	require.ErrorIs(t, err, ErrModelNotInstalled)
}
