package vocab

import "fmt"

// PaddedBatch is a rectangular batch of vectors right-padded to the longest
// vector, with the original lengths.
type PaddedBatch struct {
	Tensor  [][]int64
	Lengths []int
}

// Pad right-pads vectors with the padding index.
func (e *StaticEncoder) Pad(vectors [][]int64) PaddedBatch {
	return Pad(vectors, e.paddingIndex)
}

// Pad right-pads vectors with padding so that all rows share one length.
func Pad(vectors [][]int64, padding int64) PaddedBatch {
	maxLen := 0
	for _, v := range vectors {
		maxLen = max(maxLen, len(v))
	}

	b := PaddedBatch{
		Tensor:  make([][]int64, len(vectors)),
		Lengths: make([]int, len(vectors)),
	}
	for i, v := range vectors {
		row := make([]int64, maxLen)
		n := copy(row, v)
		for j := n; j < maxLen; j++ {
			row[j] = padding
		}
		b.Tensor[i] = row
		b.Lengths[i] = len(v)
	}
	return b
}

// Unpad returns each row truncated to its length.
func (b PaddedBatch) Unpad() ([][]int64, error) {
	if len(b.Tensor) != len(b.Lengths) {
		return nil, fmt.Errorf("padded batch has %d rows but %d lengths", len(b.Tensor), len(b.Lengths))
	}
	out := make([][]int64, len(b.Tensor))
	for i, row := range b.Tensor {
		n := b.Lengths[i]
		if n < 0 || n > len(row) {
			return nil, fmt.Errorf("row %d: length %d out of range [0, %d]", i, n, len(row))
		}
		out[i] = row[:n:n]
	}
	return out, nil
}

// DecodePadded decodes a padded batch, ignoring the padding.
func (e *StaticEncoder) DecodePadded(b PaddedBatch) ([]string, error) {
	vectors, err := b.Unpad()
	if err != nil {
		return nil, err
	}
	return e.BatchDecode(vectors)
}
