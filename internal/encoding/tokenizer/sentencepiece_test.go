package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

// writeSentencePieceModel writes a small UNIGRAM model covering "hello world"
// to dir/<lang>.model.
func writeSentencePieceModel(t *testing.T, dir, lang string) {
	t.Helper()
	piece := func(text string, score float32, typ gosp.ModelProto_SentencePiece_Type) *gosp.ModelProto_SentencePiece {
		return &gosp.ModelProto_SentencePiece{Piece: proto.String(text), Score: proto.Float32(score), Type: typ.Enum()}
	}
	model := &gosp.ModelProto{Pieces: []*gosp.ModelProto_SentencePiece{
		piece("<unk>", 0, gosp.ModelProto_SentencePiece_UNKNOWN),
		piece("▁hello", -1, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁wor", -2, gosp.ModelProto_SentencePiece_NORMAL),
		piece("ld", -2, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁", -3, gosp.ModelProto_SentencePiece_NORMAL),
	}}
	data, err := proto.Marshal(model)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, lang+".model"), data, 0o644))
}

func TestSentencePiece_Segment(t *testing.T) {
	dir := t.TempDir()
	writeSentencePieceModel(t, dir, "en")

	seg, err := Load("sentencepiece", "en", LoadOptions{ModelDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "en", seg.Language())
	assert.Equal(t, "sentencepiece", seg.Backend())

	got := seg.Segment("hello  world!")
	assert.Equal(t, []string{"hello", "wor", "ld", "!"}, got)
	for _, piece := range got {
		assert.NotEmpty(t, piece)
		assert.False(t, strings.Contains(piece, wordStart), "piece %q keeps the word marker", piece)
	}

	assert.Empty(t, seg.Segment(""))
}

func TestSentencePiece_CorruptModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.model"), []byte("not a model"), 0o644))

	_, err := Load("sentencepiece", "en", LoadOptions{ModelDir: dir})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelNotInstalled)
}
