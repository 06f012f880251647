// Package tokenizer splits raw text into token strings using language models
// served by pluggable backends.
package tokenizer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownBackend is returned when a backend name is not registered.
	ErrUnknownBackend = errors.New("unknown tokenizer backend")
	// ErrBackendUnavailable is returned when a backend is registered but its
	// library is not present in this build.
	ErrBackendUnavailable = errors.New("tokenizer backend unavailable")
	// ErrModelNotInstalled is returned when the backend has no model for the
	// requested language.
	ErrModelNotInstalled = errors.New("language model not installed")
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = "rules"

// Segmenter splits text into an ordered sequence of token strings.
// Implementations are immutable after loading and safe for concurrent use.
type Segmenter interface {
	Segment(text string) []string
	Language() string
	Backend() string
}

// LoadOptions configures model resolution.
type LoadOptions struct {
	// ModelDir is searched for installed models before any built-in copy.
	ModelDir string
}

// Backend loads language models for one tokenizer implementation.
type Backend interface {
	Name() string
	Check() Capability
	Load(lang string, opts LoadOptions) (Segmenter, error)
	// InstallHint tells the user how to install the model for lang.
	InstallHint(lang string, opts LoadOptions) string
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available by name. It panics on duplicates.
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[b.Name()]; dup {
		panic("tokenizer: Register called twice for backend " + b.Name())
	}
	backends[b.Name()] = b
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend
	}
	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, name, Backends())
	}
	return b, nil
}

// Check reports whether the named backend can be used in this build.
func Check(name string) (Capability, error) {
	b, err := lookup(name)
	if err != nil {
		return Capability{}, err
	}
	return b.Check(), nil
}

// Load resolves the language model for lang on the named backend.
func Load(name, lang string, opts LoadOptions) (Segmenter, error) {
	b, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if c := b.Check(); !c.Available() {
		return nil, fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, b.Name(), c.Install)
	}
	return b.Load(lang, opts)
}

// InstallHint returns the model installation guidance of the named backend.
func InstallHint(name, lang string, opts LoadOptions) string {
	b, err := lookup(name)
	if err != nil {
		return ""
	}
	return b.InstallHint(lang, opts)
}

func notInstalled(backend, lang, hint string) error {
	return fmt.Errorf("%w: language %q not found for backend %s; install with: %s",
		ErrModelNotInstalled, lang, backend, hint)
}
