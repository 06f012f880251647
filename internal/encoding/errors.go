package encoding

import "errors"

var (
	// ErrInvalidArgument is returned for a custom tokenizer, an unsupported
	// language, an unknown backend or a language model that is not installed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDependencyMissing is returned when the tokenizer backend library is
	// not available in this build.
	ErrDependencyMissing = errors.New("dependency missing")
)
