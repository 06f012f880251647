//go:build !(cgo && tokenizers)

package tokenizer

import "fmt"

// hfInstall is shown when the HuggingFace backend is not compiled in.
const hfInstall = "rebuild with CGO_ENABLED=1 go build -tags tokenizers, " +
	"with libtokenizers.a from https://github.com/daulet/tokenizers/releases " +
	"on the linker path (CGO_LDFLAGS=-L/path/to/lib)"

type hfBackend struct{}

func init() { Register(hfBackend{}) }

func (hfBackend) Name() string { return "hf" }

func (hfBackend) Check() Capability { return missing("hf", hfInstall) }

func (hfBackend) InstallHint(lang string, opts LoadOptions) string {
	return hfModelHint(lang, opts.ModelDir)
}

func (b hfBackend) Load(string, LoadOptions) (Segmenter, error) {
	return nil, fmt.Errorf("%w: hf: %s", ErrBackendUnavailable, hfInstall)
}
