package tokenizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// wordStart is the SentencePiece word boundary marker.
const wordStart = "▁"

// SentencePieceSegmenter segments text with a pure-Go UNIGRAM SentencePiece
// model and returns the pieces without word boundary markers.
type SentencePieceSegmenter struct {
	lang string
	proc gosp.Sentencepiece
}

type sentencePieceBackend struct{}

func init() { Register(sentencePieceBackend{}) }

func (sentencePieceBackend) Name() string { return "sentencepiece" }

func (sentencePieceBackend) Check() Capability { return available("sentencepiece") }

func (sentencePieceBackend) InstallHint(lang string, opts LoadOptions) string {
	return fmt.Sprintf("download a SentencePiece model to %s", sentencePiecePath(lang, opts.ModelDir))
}

func (b sentencePieceBackend) Load(lang string, opts LoadOptions) (Segmenter, error) {
	if opts.ModelDir == "" {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	path := sentencePiecePath(lang, opts.ModelDir)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	return NewSentencePieceSegmenter(lang, path)
}

func sentencePiecePath(lang, dir string) string {
	if dir == "" {
		dir = "<model-dir>"
	}
	return filepath.Join(dir, lang+".model")
}

// NewSentencePieceSegmenter loads a SentencePiece model from path.
func NewSentencePieceSegmenter(lang, path string) (*SentencePieceSegmenter, error) {
	proc, err := gosp.NewSentencepieceFromFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", path, err)
	}
	return &SentencePieceSegmenter{lang: lang, proc: proc}, nil
}

func (s *SentencePieceSegmenter) Language() string { return s.lang }

func (s *SentencePieceSegmenter) Backend() string { return "sentencepiece" }

// Segment implements Segmenter.
func (s *SentencePieceSegmenter) Segment(text string) []string {
	if text == "" {
		return nil
	}
	pieces := s.proc.Tokenize(text)
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if piece := strings.TrimPrefix(p.Text, wordStart); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
