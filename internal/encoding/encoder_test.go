package encoding

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/23skdu/longbow-quill/internal/encoding/tokenizer"
	"github.com/23skdu/longbow-quill/internal/encoding/vocab"
)

var sample = []string{"This ain't funny.", "Don't?"}

func TestNew_Example(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, []string{"<pad>", "<unk>", "</s>", "<s>", "<copy>", "This", "ai", "n't", "funny", ".", "Do", "?"}, e.Vocab())
	assert.Equal(t, "en", e.Language())
	assert.Equal(t, "rules", e.Backend())

	vec := e.Encode("This ain't funny.")
	assert.Len(t, vec, 5)

	text, err := e.Decode(vec)
	require.NoError(t, err)
	assert.Equal(t, "This ai n't funny .", text)
}

func TestNew_AppendEOS(t *testing.T) {
	e, err := New(sample, Options{Options: vocab.Options{AppendEOS: true}})
	require.NoError(t, err)

	vec := e.Encode("This ain't funny.")
	require.Len(t, vec, 6)
	assert.Equal(t, vocab.DefaultEOSIndex, vec[5])

	batch, err := e.BatchEncode(context.Background(), sample)
	require.NoError(t, err)
	for _, v := range batch {
		assert.Equal(t, e.EOSIndex(), v[len(v)-1])
	}
}

func TestNew_CustomTokenizerRejected(t *testing.T) {
	custom := vocab.TokenizerFunc(strings.Fields)
	for _, opts := range []Options{
		{Options: vocab.Options{Tokenizer: custom}},
		{Options: vocab.Options{Tokenizer: custom, AppendEOS: true, MinOccurrences: 2}, Language: "de"},
		{Options: vocab.Options{Tokenizer: custom}, Language: "zz"},
	} {
		_, err := New(sample, opts)
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "custom tokenizer")
	}
}

func TestNew_UnsupportedLanguage(t *testing.T) {
	for _, lang := range []string{"sv", "zz", "EN", "english"} {
		t.Run(lang, func(t *testing.T) {
			_, err := New(sample, Options{Language: lang})
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), `"`+lang+`"`)
			assert.Contains(t, err.Error(), "en, de, es, pt, fr, it, nl, xx")
		})
	}
}

func TestNew_AllLanguages(t *testing.T) {
	for _, lang := range tokenizer.DefaultLanguages {
		t.Run(lang, func(t *testing.T) {
			e, err := New(sample, Options{Language: lang})
			require.NoError(t, err)
			assert.Equal(t, lang, e.Language())
			assert.NotEmpty(t, e.Tokens("Hello, world."))
		})
	}
}

func TestNew_ModelNotInstalled(t *testing.T) {
	_, err := New(sample, Options{Language: "sv", Languages: []string{"en", "sv"}})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, tokenizer.ErrModelNotInstalled)
	assert.Contains(t, err.Error(), `"sv"`)
	assert.Contains(t, err.Error(), "sv.yaml")
}

func TestNew_LanguagesOverride(t *testing.T) {
	_, err := New(sample, Options{Language: "en", Languages: []string{"de"}})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "choose one of: de")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(sample, Options{Backend: "spacy"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, tokenizer.ErrUnknownBackend)
}

func TestNew_InvalidVocabOptions(t *testing.T) {
	_, err := New(sample, Options{Options: vocab.Options{MinOccurrences: -1}})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, vocab.ErrInvalidOptions)
}

func TestNew_WordPieceBackend(t *testing.T) {
	dir := t.TempDir()
	vocabTxt := "[PAD]\n[UNK]\nhello\nworld\n##s\n!\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.vocab.txt"), []byte(vocabTxt), 0o644))

	e, err := New([]string{"Hello worlds!"}, Options{Backend: "wordpiece", ModelDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "wordpiece", e.Backend())
	assert.Equal(t, []string{"hello", "world", "##s", "!"}, e.Vocab()[len(vocab.DefaultReservedTokens):])
}

func TestNew_SentencePieceBackend(t *testing.T) {
	piece := func(text string, score float32, typ gosp.ModelProto_SentencePiece_Type) *gosp.ModelProto_SentencePiece {
		return &gosp.ModelProto_SentencePiece{Piece: proto.String(text), Score: proto.Float32(score), Type: typ.Enum()}
	}
	data, err := proto.Marshal(&gosp.ModelProto{Pieces: []*gosp.ModelProto_SentencePiece{
		piece("<unk>", 0, gosp.ModelProto_SentencePiece_UNKNOWN),
		piece("▁hello", -1, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁wor", -2, gosp.ModelProto_SentencePiece_NORMAL),
		piece("ld", -2, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁", -3, gosp.ModelProto_SentencePiece_NORMAL),
	}})
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.model"), data, 0o644))

	e, err := New([]string{"hello  world!"}, Options{Backend: "sentencepiece", ModelDir: dir})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	assert.Equal(t, "sentencepiece", e.Backend())
	assert.Equal(t, []string{"hello", "wor", "ld", "!"}, e.Vocab()[len(vocab.DefaultReservedTokens):])

	got, err := e.BatchEncode(context.Background(), []string{"hello  world!"})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{e.Encode("hello  world!")}, got)
}

func TestBatchEncode_MatchesEncode(t *testing.T) {
	texts := append(GenerateLorem(20, 3), sample...)
	texts = append(texts, "", "   ", "Completely unseen words!")

	e, err := New(texts[:10], Options{Workers: 3})
	require.NoError(t, err)

	got, err := e.BatchEncode(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		assert.Equal(t, e.Encode(text), got[i], "input %d: %q", i, text)
	}

	single, err := e.BatchEncode(context.Background(), texts[3:4])
	require.NoError(t, err)
	assert.Equal(t, [][]int64{e.Encode(texts[3])}, single)
}

func TestBatchEncode_Order(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)

	got, err := e.BatchEncode(context.Background(), []string{"Don't?", "This ain't funny."})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{10, 7, 11}, {5, 6, 7, 8, 9}}, got)
}

func TestBatchEncode_UnknownTokens(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)

	before := testutil.ToFloat64(unknownTokens.WithLabelValues("en"))
	got, err := e.BatchEncode(context.Background(), []string{"Zebras don't?"})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{vocab.DefaultUnknownIndex, vocab.DefaultUnknownIndex, 7, 11}}, got)
	assert.Equal(t, before+2, testutil.ToFloat64(unknownTokens.WithLabelValues("en")))
}

func TestBatchEncode_Empty(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)

	got, err := e.BatchEncode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBatchEncode_Cancelled(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.BatchEncode(ctx, GenerateLorem(50, 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshot_Load(t *testing.T) {
	e, err := New([]string{"Wie geht's?", "Das ist z.B. gut."}, Options{
		Language: "de",
		Options:  vocab.Options{AppendEOS: true},
	})
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Equal(t, map[string]string{MetaLanguage: "de", MetaBackend: "rules"}, snap.Meta)

	var buf bytes.Buffer
	require.NoError(t, vocab.WriteSnapshot(&buf, snap))
	read, err := vocab.ReadSnapshot(&buf)
	require.NoError(t, err)

	restored, err := Load(read, Options{})
	require.NoError(t, err)
	assert.Equal(t, "de", restored.Language())
	assert.Equal(t, e.Vocab(), restored.Vocab())
	assert.True(t, restored.AppendEOS())
	for _, text := range []string{"Wie geht's?", "Neu ist z.B. gut!"} {
		assert.Equal(t, e.Encode(text), restored.Encode(text))
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(vocab.Snapshot{}, Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, vocab.ErrInvalidSnapshot)

	e, err := New(sample, Options{})
	require.NoError(t, err)
	_, err = Load(e.Snapshot(), Options{Language: "sv"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLoad_CountsEncodersBuilt(t *testing.T) {
	e, err := New(sample, Options{})
	require.NoError(t, err)
	snap := e.Snapshot()

	ok := encodersBuilt.WithLabelValues("rules", "ok")
	failed := encodersBuilt.WithLabelValues("rules", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	_, err = Load(snap, Options{})
	require.NoError(t, err)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))

	_, err = Load(snap, Options{Language: "sv"})
	require.Error(t, err)
	_, err = Load(vocab.Snapshot{}, Options{})
	require.Error(t, err)
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(failed))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
}
