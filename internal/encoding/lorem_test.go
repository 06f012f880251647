package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLorem(t *testing.T) {
	for _, count := range []int{1, 5, 10} {
		texts := GenerateLorem(count, 42)
		require.Len(t, texts, count)
		for _, text := range texts {
			assert.NotEmpty(t, text)
		}
	}
}

func TestGenerateLorem_Deterministic(t *testing.T) {
	assert.Equal(t, GenerateLorem(4, 7), GenerateLorem(4, 7))
}

func TestGenerateLorem_Zero(t *testing.T) {
	assert.Empty(t, GenerateLorem(0, 1))
}
