package tokenizer

import (
	"fmt"
	"path/filepath"
)

func hfModelPath(lang, dir string) string {
	if dir == "" {
		dir = "<model-dir>"
	}
	return filepath.Join(dir, lang, "tokenizer.json")
}

func hfModelHint(lang, dir string) string {
	return fmt.Sprintf("download a HuggingFace tokenizer.json to %s", hfModelPath(lang, dir))
}
