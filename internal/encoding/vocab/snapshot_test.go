package vocab

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	e, err := New([]string{"This ain't funny.", "Don't?"}, Options{
		Tokenizer:      exampleTokenizer,
		AppendEOS:      true,
		MinOccurrences: 1,
	})
	require.NoError(t, err)

	snap := e.Snapshot()
	snap.Meta = map[string]string{"language": "en"}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	restored, err := FromSnapshot(got, Options{Tokenizer: exampleTokenizer})
	require.NoError(t, err)
	assert.Equal(t, e.Vocab(), restored.Vocab())
	assert.Equal(t, e.Counts(), restored.Counts())
	assert.Equal(t, e.AppendEOS(), restored.AppendEOS())
	for _, text := range []string{"This ain't funny.", "Don't?", "unseen words"} {
		assert.Equal(t, e.Encode(text), restored.Encode(text))
	}
}

func TestFromSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"NoTokens", Snapshot{}},
		{"ReservedNotPrefix", Snapshot{Tokens: []string{"a", "<pad>"}, Reserved: []string{"<pad>"}}},
		{"ReservedTooLong", Snapshot{Tokens: []string{"<pad>"}, Reserved: []string{"<pad>", "<unk>"}}},
		{"DuplicateToken", Snapshot{Tokens: []string{"<pad>", "a", "a"}, Reserved: []string{"<pad>"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSnapshot(tt.snap, Options{Tokenizer: fieldsTokenizer})
			require.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}

	_, err := FromSnapshot(Snapshot{Tokens: []string{"a"}}, Options{})
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestReadSnapshot_Garbage(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte{0xff, 0x00, 0x13}))
	require.Error(t, err)
}
