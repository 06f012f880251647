package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// WordPieceSegmenter splits text on whitespace and punctuation, lowercases
// and strips accents, then applies greedy longest-match WordPiece against a
// BERT-style vocab file.
type WordPieceSegmenter struct {
	lang          string
	vocab         map[string]struct{}
	maxInputChars int
	unkToken      string
	neverSplit    map[string]bool
}

type wordPieceBackend struct{}

func init() { Register(wordPieceBackend{}) }

func (wordPieceBackend) Name() string { return "wordpiece" }

func (wordPieceBackend) Check() Capability { return available("wordpiece") }

func (wordPieceBackend) InstallHint(lang string, opts LoadOptions) string {
	return fmt.Sprintf("copy a BERT vocab.txt to %s", wordPieceVocabPath(lang, opts.ModelDir))
}

func (b wordPieceBackend) Load(lang string, opts LoadOptions) (Segmenter, error) {
	if opts.ModelDir == "" {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	seg, err := NewWordPieceSegmenter(lang, wordPieceVocabPath(lang, opts.ModelDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	if err != nil {
		return nil, fmt.Errorf("load wordpiece vocab: %w", err)
	}
	return seg, nil
}

func wordPieceVocabPath(lang, dir string) string {
	if dir == "" {
		dir = "<model-dir>"
	}
	return filepath.Join(dir, lang+".vocab.txt")
}

// NewWordPieceSegmenter creates a WordPieceSegmenter from a vocab file.
func NewWordPieceSegmenter(lang, vocabPath string) (*WordPieceSegmenter, error) {
	vocab, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}

	return &WordPieceSegmenter{
		lang:          lang,
		vocab:         vocab,
		maxInputChars: 200,
		unkToken:      "[UNK]",
		neverSplit: map[string]bool{
			"[UNK]": true, "[SEP]": true, "[PAD]": true, "[CLS]": true, "[MASK]": true,
		},
	}, nil
}

// loadVocab reads a BERT-style vocab.txt file.
func loadVocab(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	vocab := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			vocab[line] = struct{}{}
		}
	}
	return vocab, scanner.Err()
}

func (t *WordPieceSegmenter) Language() string { return t.lang }

func (t *WordPieceSegmenter) Backend() string { return "wordpiece" }

// isPunctuation checks if a rune is a punctuation character.
func isPunctuation(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// splitOnPunctuation splits text on whitespace and punctuation, keeping
// punctuation as separate tokens and never splitting special tokens.
func (t *WordPieceSegmenter) splitOnPunctuation(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	i := 0
	for i < len(text) {
		if text[i] == '[' {
			matched := false
			for ns := range t.neverSplit {
				if strings.HasPrefix(text[i:], ns) {
					flush()
					tokens = append(tokens, ns)
					i += len(ns)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isPunctuation(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
		}
		i += size
	}
	flush()
	return tokens
}

// Segment implements the WordPiece algorithm and returns subword pieces.
func (t *WordPieceSegmenter) Segment(text string) []string {
	rawTokens := t.splitOnPunctuation(text)
	out := make([]string, 0, len(rawTokens)*2)
	tform := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	for _, token := range rawTokens {
		if t.neverSplit[token] {
			out = append(out, token)
			continue
		}

		normToken, _, err := transform.String(tform, strings.ToLower(token))
		if err != nil {
			normToken = strings.ToLower(token)
		}
		if len(normToken) > t.maxInputChars {
			out = append(out, t.unkToken)
			continue
		}

		var subTokens []string
		bad := false
		start := 0
		for start < len(normToken) {
			end := len(normToken)
			cur := ""
			for start < end {
				substr := normToken[start:end]
				if start > 0 {
					substr = "##" + substr
				}
				if _, ok := t.vocab[substr]; ok {
					cur = substr
					break
				}
				end--
			}
			if cur == "" {
				bad = true
				break
			}
			subTokens = append(subTokens, cur)
			start = end
		}

		if bad {
			out = append(out, t.unkToken)
		} else {
			out = append(out, subTokens...)
		}
	}
	return out
}
