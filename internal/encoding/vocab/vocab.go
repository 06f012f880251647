// Package vocab builds a fixed vocabulary from a sample corpus and encodes
// text to integer index vectors and back.
package vocab

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Reserved tokens and their default indices.
const (
	PaddingToken = "<pad>"
	UnknownToken = "<unk>"
	EOSToken     = "</s>"
	SOSToken     = "<s>"
	CopyToken    = "<copy>"

	DefaultPaddingIndex int64 = 0
	DefaultUnknownIndex int64 = 1
	DefaultEOSIndex     int64 = 2
	DefaultSOSIndex     int64 = 3
	DefaultCopyIndex    int64 = 4
)

// DefaultReservedTokens occupy the lowest indices of every vocabulary unless
// Options.ReservedTokens is set.
var DefaultReservedTokens = []string{PaddingToken, UnknownToken, EOSToken, SOSToken, CopyToken}

var (
	ErrInvalidOptions  = errors.New("invalid encoder options")
	ErrIndexOutOfRange = errors.New("index out of vocabulary range")
)

// Tokenizer splits text into tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(text string) []string

func (f TokenizerFunc) Tokenize(text string) []string { return f(text) }

// Detokenizer joins tokens back into text.
type Detokenizer interface {
	Detokenize(tokens []string) string
}

// DetokenizerFunc adapts a function to Detokenizer.
type DetokenizerFunc func(tokens []string) string

func (f DetokenizerFunc) Detokenize(tokens []string) string { return f(tokens) }

// SpaceDetokenizer joins tokens with a single space.
var SpaceDetokenizer = DetokenizerFunc(func(tokens []string) string {
	return strings.Join(tokens, " ")
})

// Options configures a StaticEncoder. Zero values select the defaults.
type Options struct {
	// MinOccurrences is the minimum sample count for a token to enter the
	// vocabulary. Zero means 1.
	MinOccurrences int
	// AppendEOS appends the EOS index to every encoded vector.
	AppendEOS bool
	// ReservedTokens are inserted at the beginning of the vocabulary.
	ReservedTokens []string
	EOSIndex       *int64
	UnknownIndex   *int64
	PaddingIndex   *int64
	// Tokenizer is required. Detokenizer defaults to SpaceDetokenizer.
	Tokenizer   Tokenizer
	Detokenizer Detokenizer
}

// At returns a pointer to i, for the index fields of Options.
func At(i int64) *int64 { return &i }

// TokenCount is a vocabulary token with its sample frequency.
type TokenCount struct {
	Token string `cbor:"token"`
	Count int    `cbor:"count"`
}

// StaticEncoder maps tokens to indices using a vocabulary fixed at
// construction. It is safe for concurrent use.
type StaticEncoder struct {
	tokenizer   Tokenizer
	detokenizer Detokenizer

	itos   []string
	stoi   map[string]int64
	counts []TokenCount

	reserved       []string
	minOccurrences int
	appendEOS      bool
	eosIndex       int64
	unknownIndex   int64
	paddingIndex   int64
}

type settings struct {
	reserved       []string
	minOccurrences int
	appendEOS      bool
	eos, unk, pad  int64
	detokenizer    Detokenizer
}

func resolve(opts Options) (settings, error) {
	s := settings{
		reserved:       DefaultReservedTokens,
		minOccurrences: opts.MinOccurrences,
		appendEOS:      opts.AppendEOS,
		eos:            DefaultEOSIndex,
		unk:            DefaultUnknownIndex,
		pad:            DefaultPaddingIndex,
		detokenizer:    opts.Detokenizer,
	}
	if opts.ReservedTokens != nil {
		s.reserved = opts.ReservedTokens
	}
	if s.minOccurrences < 0 {
		return s, fmt.Errorf("%w: min occurrences must be >= 1, got %d", ErrInvalidOptions, s.minOccurrences)
	}
	if s.minOccurrences == 0 {
		s.minOccurrences = 1
	}
	for _, idx := range []struct {
		name string
		v    *int64
		dst  *int64
	}{
		{"eos", opts.EOSIndex, &s.eos},
		{"unknown", opts.UnknownIndex, &s.unk},
		{"padding", opts.PaddingIndex, &s.pad},
	} {
		if idx.v == nil {
			continue
		}
		if *idx.v < 0 {
			return s, fmt.Errorf("%w: %s index must be >= 0, got %d", ErrInvalidOptions, idx.name, *idx.v)
		}
		*idx.dst = *idx.v
	}
	if s.detokenizer == nil {
		s.detokenizer = SpaceDetokenizer
	}
	return s, nil
}

// New builds the vocabulary from sample with opts.Tokenizer. Tokens enter
// the vocabulary in first-seen order after the reserved tokens.
func New(sample []string, opts Options) (*StaticEncoder, error) {
	tok := opts.Tokenizer
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidOptions)
	}
	s, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	counts := linkedhashmap.New()
	for _, text := range sample {
		for _, token := range tok.Tokenize(text) {
			n := 0
			if v, ok := counts.Get(token); ok {
				n = v.(int)
			}
			counts.Put(token, n+1)
		}
	}

	e := newEncoder(tok, s)
	e.counts = make([]TokenCount, 0, counts.Size())
	it := counts.Iterator()
	for it.Next() {
		token, count := it.Key().(string), it.Value().(int)
		e.counts = append(e.counts, TokenCount{Token: token, Count: count})
		if count < s.minOccurrences {
			continue
		}
		if _, dup := e.stoi[token]; dup {
			continue
		}
		e.stoi[token] = int64(len(e.itos))
		e.itos = append(e.itos, token)
	}
	return e, nil
}

func newEncoder(tok Tokenizer, s settings) *StaticEncoder {
	e := &StaticEncoder{
		tokenizer:      tok,
		detokenizer:    s.detokenizer,
		itos:           make([]string, 0, len(s.reserved)),
		stoi:           make(map[string]int64, len(s.reserved)),
		reserved:       slices.Clone(s.reserved),
		minOccurrences: s.minOccurrences,
		appendEOS:      s.appendEOS,
		eosIndex:       s.eos,
		unknownIndex:   s.unk,
		paddingIndex:   s.pad,
	}
	for _, token := range s.reserved {
		if _, dup := e.stoi[token]; dup {
			continue
		}
		e.stoi[token] = int64(len(e.itos))
		e.itos = append(e.itos, token)
	}
	return e
}

// Encode tokenizes text and maps every token to its index. Unknown tokens map
// to the unknown index.
func (e *StaticEncoder) Encode(text string) []int64 {
	return e.EncodeTokens(e.tokenizer.Tokenize(text))
}

// EncodeTokens maps already tokenized text to indices.
func (e *StaticEncoder) EncodeTokens(tokens []string) []int64 {
	vector := make([]int64, 0, len(tokens)+1)
	for _, token := range tokens {
		vector = append(vector, e.Lookup(token))
	}
	if e.appendEOS {
		vector = append(vector, e.eosIndex)
	}
	return vector
}

// BatchEncode encodes each text in order.
func (e *StaticEncoder) BatchEncode(ctx context.Context, texts []string) ([][]int64, error) {
	out := make([][]int64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.Encode(text)
	}
	return out, nil
}

// Decode maps indices back to tokens and detokenizes them.
func (e *StaticEncoder) Decode(vector []int64) (string, error) {
	tokens := make([]string, len(vector))
	for i, idx := range vector {
		if idx < 0 || idx >= int64(len(e.itos)) {
			return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(e.itos))
		}
		tokens[i] = e.itos[idx]
	}
	return e.detokenizer.Detokenize(tokens), nil
}

// BatchDecode decodes each vector in order.
func (e *StaticEncoder) BatchDecode(vectors [][]int64) ([]string, error) {
	out := make([]string, len(vectors))
	for i, v := range vectors {
		text, err := e.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("decode vector %d: %w", i, err)
		}
		out[i] = text
	}
	return out, nil
}

// Lookup returns the index of token, or the unknown index.
func (e *StaticEncoder) Lookup(token string) int64 {
	if idx, ok := e.stoi[token]; ok {
		return idx
	}
	return e.unknownIndex
}

// Index returns the index of token and whether it is in the vocabulary.
func (e *StaticEncoder) Index(token string) (int64, bool) {
	idx, ok := e.stoi[token]
	return idx, ok
}

// Vocab returns a copy of the vocabulary in index order.
func (e *StaticEncoder) Vocab() []string { return slices.Clone(e.itos) }

func (e *StaticEncoder) VocabSize() int { return len(e.itos) }

// Counts returns the sample frequency of every token seen while building,
// in first-seen order, including tokens filtered by MinOccurrences.
func (e *StaticEncoder) Counts() []TokenCount { return slices.Clone(e.counts) }

func (e *StaticEncoder) ReservedTokens() []string { return slices.Clone(e.reserved) }
func (e *StaticEncoder) MinOccurrences() int      { return e.minOccurrences }
func (e *StaticEncoder) AppendEOS() bool          { return e.appendEOS }
func (e *StaticEncoder) EOSIndex() int64          { return e.eosIndex }
func (e *StaticEncoder) UnknownIndex() int64      { return e.unknownIndex }
func (e *StaticEncoder) PaddingIndex() int64      { return e.paddingIndex }
