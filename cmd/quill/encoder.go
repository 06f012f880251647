package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-quill/internal/config"
	"github.com/23skdu/longbow-quill/internal/encoding"
	"github.com/23skdu/longbow-quill/internal/encoding/vocab"
)

func encoderOptions(cfg config.Config) encoding.Options {
	opts := encoding.Options{
		Options: vocab.Options{
			MinOccurrences: cfg.Encoder.MinOccurrences,
			AppendEOS:      cfg.Encoder.AppendEOS,
		},
		Language:  cfg.Encoder.Language,
		Backend:   cfg.Encoder.Backend,
		ModelDir:  cfg.Encoder.ModelDir,
		Languages: cfg.Encoder.Languages,
		Workers:   cfg.Encoder.Workers,
	}
	if len(cfg.Encoder.ReservedTokens) > 0 {
		opts.ReservedTokens = cfg.Encoder.ReservedTokens
	}
	return opts
}

// openEncoder loads the vocabulary snapshot named by the config. The language
// and backend recorded in the snapshot take precedence over the config.
func openEncoder(cfg config.Config) (*encoding.Encoder, error) {
	f, err := os.Open(cfg.Encoder.Vocab)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary (create one with `quill vocab build`): %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := vocab.ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Encoder.Vocab, err)
	}

	opts := encoderOptions(cfg)
	if lang := snap.Meta[encoding.MetaLanguage]; lang != "" {
		if lang != opts.Language {
			log.Debug().Str("vocab", lang).Str("config", opts.Language).Msg("Using the vocabulary language")
		}
		opts.Language = ""
	}
	if snap.Meta[encoding.MetaBackend] != "" {
		opts.Backend = ""
	}

	enc, err := encoding.Load(snap, opts)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("vocab", cfg.Encoder.Vocab).
		Str("language", enc.Language()).
		Str("backend", enc.Backend()).
		Int("size", enc.VocabSize()).
		Msg("Vocabulary loaded")
	return enc, nil
}

func saveSnapshot(path string, snap vocab.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := vocab.WriteSnapshot(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readLines returns args when present, otherwise the lines of r.
func readLines(args []string, r io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// readFiles concatenates the lines of every file; "-" reads stdin.
func readFiles(paths []string, stdin io.Reader) ([]string, error) {
	var lines []string
	for _, p := range paths {
		more, err := readFile(p, stdin)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		lines = append(lines, more...)
	}
	return lines, nil
}

func readFile(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return readLines(nil, stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readLines(nil, f)
}
