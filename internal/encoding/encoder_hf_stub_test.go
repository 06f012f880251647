//go:build !(cgo && tokenizers)

package encoding

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DependencyMissing(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = saved }()

	e, err := New(sample, Options{Backend: "hf"})
	require.ErrorIs(t, err, ErrDependencyMissing)
	assert.Nil(t, e)
	assert.Contains(t, err.Error(), "-tags tokenizers")

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "-tags tokenizers")
}

func TestNew_DependencyMissingAfterLanguageCheck(t *testing.T) {
	_, err := New(sample, Options{Backend: "hf", Language: "zz"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrDependencyMissing)
}
