// Package encoding builds static-vocabulary encoders whose tokenizer is a
// language model selected from the tokenizer package.
package encoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-quill/internal/encoding/tokenizer"
	"github.com/23skdu/longbow-quill/internal/encoding/vocab"
)

// DefaultLanguage is used when Options.Language is empty.
const DefaultLanguage = "en"

// Snapshot metadata keys written by Encoder.Snapshot.
const (
	MetaLanguage = "language"
	MetaBackend  = "backend"
)

// Options configures an Encoder. The embedded vocab.Options carry the
// vocabulary settings; vocab.Options.Tokenizer must be left nil.
type Options struct {
	vocab.Options

	// Language is the language code of the tokenizer model. Default "en".
	Language string
	// Backend names the tokenizer backend. Default tokenizer.DefaultBackend.
	Backend string
	// ModelDir is searched for installed language models.
	ModelDir string
	// Languages is the supported set. Empty means tokenizer.DefaultLanguages.
	Languages []string
	// Workers bounds BatchEncode parallelism; <= 0 uses every CPU.
	Workers int
}

func (o *Options) setDefaults() {
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.Backend == "" {
		o.Backend = tokenizer.DefaultBackend
	}
}

func (o Options) supported() []string {
	if len(o.Languages) == 0 {
		return tokenizer.DefaultLanguages
	}
	return o.Languages
}

// segmentTokenizer exposes a loaded segmenter as a vocab.Tokenizer.
type segmentTokenizer struct {
	seg tokenizer.Segmenter
}

func (t segmentTokenizer) Tokenize(text string) []string {
	start := time.Now()
	tokens := t.seg.Segment(text)
	tokenizationDuration.WithLabelValues(t.seg.Language(), "single").Observe(time.Since(start).Seconds())
	return tokens
}

// Encoder is a static-vocabulary encoder bound to one language model for its
// whole lifetime. It is safe for concurrent use.
type Encoder struct {
	*vocab.StaticEncoder

	segmenter tokenizer.Segmenter
	workers   int
}

// New loads the tokenizer model for opts.Language and builds the vocabulary
// from sample. Construction either fully succeeds or returns an error wrapping
// ErrInvalidArgument or ErrDependencyMissing.
func New(sample []string, opts Options) (*Encoder, error) {
	opts.setDefaults()
	seg, err := loadSegmenter(opts)
	if err != nil {
		encodersBuilt.WithLabelValues(opts.Backend, "error").Inc()
		return nil, err
	}

	opts.Options.Tokenizer = segmentTokenizer{seg: seg}
	base, err := vocab.New(sample, opts.Options)
	if err != nil {
		closeSegmenter(seg)
		encodersBuilt.WithLabelValues(opts.Backend, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	encodersBuilt.WithLabelValues(opts.Backend, "ok").Inc()

	log.Debug().
		Str("language", seg.Language()).
		Str("backend", seg.Backend()).
		Int("sample", len(sample)).
		Int("vocab_size", base.VocabSize()).
		Msg("Encoder built")

	return &Encoder{StaticEncoder: base, segmenter: seg, workers: opts.Workers}, nil
}

// Load restores an encoder from a vocabulary snapshot. Language and Backend
// default to the values recorded in the snapshot metadata.
func Load(snap vocab.Snapshot, opts Options) (*Encoder, error) {
	if opts.Language == "" {
		opts.Language = snap.Meta[MetaLanguage]
	} else if lang := snap.Meta[MetaLanguage]; lang != "" && lang != opts.Language {
		log.Warn().Str("snapshot", lang).Str("language", opts.Language).
			Msg("Loading vocabulary with a different language than it was built with")
	}
	if opts.Backend == "" {
		opts.Backend = snap.Meta[MetaBackend]
	}
	opts.setDefaults()

	seg, err := loadSegmenter(opts)
	if err != nil {
		encodersBuilt.WithLabelValues(opts.Backend, "error").Inc()
		return nil, err
	}
	opts.Options.Tokenizer = segmentTokenizer{seg: seg}
	base, err := vocab.FromSnapshot(snap, opts.Options)
	if err != nil {
		closeSegmenter(seg)
		encodersBuilt.WithLabelValues(opts.Backend, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	encodersBuilt.WithLabelValues(opts.Backend, "ok").Inc()
	return &Encoder{StaticEncoder: base, segmenter: seg, workers: opts.Workers}, nil
}

func loadSegmenter(opts Options) (tokenizer.Segmenter, error) {
	if opts.Tokenizer != nil {
		return nil, fmt.Errorf("%w: encoder does not take a custom tokenizer", ErrInvalidArgument)
	}

	supported := opts.supported()
	if !tokenizer.Supported(opts.Language, supported) {
		return nil, fmt.Errorf("%w: language %q is not supported, choose one of: %s",
			ErrInvalidArgument, opts.Language, strings.Join(supported, ", "))
	}

	capability, err := tokenizer.Check(opts.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !capability.Available() {
		log.Error().
			Str("backend", capability.Backend).
			Str("install", capability.Install).
			Msg("Tokenizer backend is not installed")
		return nil, fmt.Errorf("%w: tokenizer backend %s: %s", ErrDependencyMissing, capability.Backend, capability.Install)
	}

	seg, err := tokenizer.Load(opts.Backend, opts.Language, tokenizer.LoadOptions{ModelDir: opts.ModelDir})
	switch {
	case errors.Is(err, tokenizer.ErrModelNotInstalled):
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, tokenizer.ErrBackendUnavailable):
		return nil, fmt.Errorf("%w: %w", ErrDependencyMissing, err)
	case err != nil:
		return nil, fmt.Errorf("load %s tokenizer for %q: %w", opts.Backend, opts.Language, err)
	}
	return seg, nil
}

// BatchEncode segments all sequences through the parallel pipeline and maps
// the tokens to indices. Output i is identical to Encode(sequences[i]).
func (e *Encoder) BatchEncode(ctx context.Context, sequences []string) ([][]int64, error) {
	lang := e.segmenter.Language()

	start := time.Now()
	docs, err := tokenizer.Pipe(ctx, e.segmenter, sequences, e.workers)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	tokenizationDuration.WithLabelValues(lang, "batch").Observe(elapsed.Seconds())

	unk := e.UnknownIndex()
	vectors := make([][]int64, len(docs))
	var total, unknown int
	for i, doc := range docs {
		vector := make([]int64, 0, len(doc)+1)
		for _, token := range doc {
			idx := e.Lookup(token)
			if idx == unk {
				unknown++
			}
			vector = append(vector, idx)
		}
		if e.AppendEOS() {
			vector = append(vector, e.EOSIndex())
		}
		total += len(doc)
		vectors[i] = vector
	}

	sequencesEncoded.WithLabelValues(lang).Add(float64(len(sequences)))
	tokensEncoded.WithLabelValues(lang).Add(float64(total))
	unknownTokens.WithLabelValues(lang).Add(float64(unknown))
	if s := elapsed.Seconds(); s > 0 {
		tokensPerSecond.WithLabelValues(lang).Set(float64(total) / s)
	}
	return vectors, nil
}

// Tokens returns the segmentation of text without mapping it to indices.
func (e *Encoder) Tokens(text string) []string { return e.segmenter.Segment(text) }

func (e *Encoder) Language() string { return e.segmenter.Language() }

func (e *Encoder) Backend() string { return e.segmenter.Backend() }

// Snapshot captures the vocabulary together with the language and backend
// needed to load it again.
func (e *Encoder) Snapshot() vocab.Snapshot {
	snap := e.StaticEncoder.Snapshot()
	snap.Meta = map[string]string{
		MetaLanguage: e.Language(),
		MetaBackend:  e.Backend(),
	}
	return snap
}

// Close releases the tokenizer model when the backend holds native resources.
func (e *Encoder) Close() error {
	if c, ok := e.segmenter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeSegmenter(seg tokenizer.Segmenter) {
	if c, ok := seg.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close tokenizer")
		}
	}
}
