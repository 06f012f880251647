//go:build !(cgo && tokenizers)

package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHF_MissingWithoutBuildTag(t *testing.T) {
	c, err := Check("hf")
	require.NoError(t, err)
	assert.False(t, c.Available())
	assert.Equal(t, StatusMissing, c.Status)
	assert.Contains(t, c.Install, "-tags tokenizers")

	_, err = Load("hf", "en", LoadOptions{})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
