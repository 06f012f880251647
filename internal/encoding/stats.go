package encoding

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a set of encoded vectors.
type Stats struct {
	Sequences    int     `json:"sequences" cbor:"sequences"`
	Tokens       int     `json:"tokens" cbor:"tokens"`
	MeanLength   float64 `json:"mean_length" cbor:"mean_length"`
	StdDevLength float64 `json:"stddev_length" cbor:"stddev_length"`
	MedianLength float64 `json:"median_length" cbor:"median_length"`
	P95Length    float64 `json:"p95_length" cbor:"p95_length"`
	MaxLength    int     `json:"max_length" cbor:"max_length"`
	UnknownRatio float64 `json:"unknown_ratio" cbor:"unknown_ratio"`
}

// Summarize computes length statistics over vectors and the share of indices
// equal to unknownIndex.
func Summarize(vectors [][]int64, unknownIndex int64) Stats {
	s := Stats{Sequences: len(vectors)}
	if len(vectors) == 0 {
		return s
	}

	lengths := make([]float64, len(vectors))
	unknown := 0
	for i, v := range vectors {
		lengths[i] = float64(len(v))
		s.Tokens += len(v)
		for _, idx := range v {
			if idx == unknownIndex {
				unknown++
			}
		}
	}
	sort.Float64s(lengths)

	s.MeanLength = stat.Mean(lengths, nil)
	if len(lengths) > 1 {
		s.StdDevLength = stat.StdDev(lengths, nil)
	}
	s.MedianLength = stat.Quantile(0.5, stat.Empirical, lengths, nil)
	s.P95Length = stat.Quantile(0.95, stat.Empirical, lengths, nil)
	s.MaxLength = int(floats.Max(lengths))
	if s.Tokens > 0 {
		s.UnknownRatio = float64(unknown) / float64(s.Tokens)
	}
	return s
}
