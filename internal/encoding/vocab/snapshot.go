package vocab

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidSnapshot is returned for snapshots that cannot back an encoder.
var ErrInvalidSnapshot = errors.New("invalid vocabulary snapshot")

// Snapshot is the persisted form of a StaticEncoder. The tokenizer itself is
// not persisted; Meta records what the caller needs to select it again.
type Snapshot struct {
	Tokens         []string          `cbor:"tokens"`
	Counts         []TokenCount      `cbor:"counts,omitempty"`
	Reserved       []string          `cbor:"reserved"`
	MinOccurrences int               `cbor:"min_occurrences"`
	AppendEOS      bool              `cbor:"append_eos"`
	EOSIndex       int64             `cbor:"eos_index"`
	UnknownIndex   int64             `cbor:"unknown_index"`
	PaddingIndex   int64             `cbor:"padding_index"`
	Meta           map[string]string `cbor:"meta,omitempty"`
}

// Snapshot captures the vocabulary and settings of e.
func (e *StaticEncoder) Snapshot() Snapshot {
	return Snapshot{
		Tokens:         slices.Clone(e.itos),
		Counts:         slices.Clone(e.counts),
		Reserved:       slices.Clone(e.reserved),
		MinOccurrences: e.minOccurrences,
		AppendEOS:      e.appendEOS,
		EOSIndex:       e.eosIndex,
		UnknownIndex:   e.unknownIndex,
		PaddingIndex:   e.paddingIndex,
	}
}

// FromSnapshot restores an encoder without re-reading a sample. Only the
// Tokenizer and Detokenizer of opts are used; everything else comes from snap.
func FromSnapshot(snap Snapshot, opts Options) (*StaticEncoder, error) {
	tok, det := opts.Tokenizer, opts.Detokenizer
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidOptions)
	}
	if len(snap.Tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens", ErrInvalidSnapshot)
	}
	reserved := dedupe(snap.Reserved)
	if len(reserved) > len(snap.Tokens) || !slices.Equal(reserved, snap.Tokens[:len(reserved)]) {
		return nil, fmt.Errorf("%w: reserved tokens do not prefix the vocabulary", ErrInvalidSnapshot)
	}
	if det == nil {
		det = SpaceDetokenizer
	}

	e := &StaticEncoder{
		tokenizer:      tok,
		detokenizer:    det,
		itos:           slices.Clone(snap.Tokens),
		stoi:           make(map[string]int64, len(snap.Tokens)),
		counts:         slices.Clone(snap.Counts),
		reserved:       slices.Clone(snap.Reserved),
		minOccurrences: max(snap.MinOccurrences, 1),
		appendEOS:      snap.AppendEOS,
		eosIndex:       snap.EOSIndex,
		unknownIndex:   snap.UnknownIndex,
		paddingIndex:   snap.PaddingIndex,
	}
	for i, token := range e.itos {
		if _, dup := e.stoi[token]; dup {
			return nil, fmt.Errorf("%w: duplicate token %q", ErrInvalidSnapshot, token)
		}
		e.stoi[token] = int64(i)
	}
	return e, nil
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// WriteSnapshot encodes snap as CBOR.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	if err := cbor.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encode vocabulary snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a CBOR snapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := cbor.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode vocabulary snapshot: %w", err)
	}
	return snap, nil
}
