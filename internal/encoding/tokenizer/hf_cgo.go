//go:build cgo && tokenizers

package tokenizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/daulet/tokenizers"
)

// HFSegmenter segments text with a HuggingFace tokenizer.json through the
// Rust tokenizers library.
type HFSegmenter struct {
	lang string
	tk   *tokenizers.Tokenizer
}

type hfBackend struct{}

func init() { Register(hfBackend{}) }

func (hfBackend) Name() string { return "hf" }

func (hfBackend) Check() Capability { return available("hf") }

func (hfBackend) InstallHint(lang string, opts LoadOptions) string {
	return hfModelHint(lang, opts.ModelDir)
}

func (b hfBackend) Load(lang string, opts LoadOptions) (Segmenter, error) {
	if opts.ModelDir == "" {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	path := hfModelPath(lang, opts.ModelDir)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", path, err)
	}
	return &HFSegmenter{lang: lang, tk: tk}, nil
}

func (s *HFSegmenter) Language() string { return s.lang }

func (s *HFSegmenter) Backend() string { return "hf" }

// Segment implements Segmenter. Word boundary markers are stripped.
func (s *HFSegmenter) Segment(text string) []string {
	if text == "" {
		return nil
	}
	_, tokens := s.tk.Encode(text, false)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimPrefix(strings.TrimPrefix(t, "Ġ"), wordStart)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Close releases the native tokenizer.
func (s *HFSegmenter) Close() error {
	return s.tk.Close()
}
