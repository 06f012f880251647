package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-quill/internal/config"
	"github.com/23skdu/longbow-quill/internal/encoding/tokenizer"
)

// PassMark and FailMark prefix each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
	SkipMark = "-"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check tokenizer backends, language models and the vocabulary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			res := runDoctor(cfg, cmd.OutOrStdout())
			if res.Failed() {
				for _, f := range res.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}
				return errors.New("doctor checks failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "doctor checks passed")
			return nil
		},
	}
}

// doctorResult collects the outcome of all checks.
type doctorResult struct {
	rows     [][]string
	failures []string
}

func (r *doctorResult) Failed() bool       { return len(r.failures) > 0 }
func (r *doctorResult) Failures() []string { return append([]string(nil), r.failures...) }

func (r *doctorResult) pass(check, detail string) {
	r.rows = append(r.rows, []string{PassMark, check, detail})
}

func (r *doctorResult) skip(check, detail string) {
	r.rows = append(r.rows, []string{SkipMark, check, detail})
}

func (r *doctorResult) fail(check, detail string) {
	r.rows = append(r.rows, []string{FailMark, check, detail})
	r.failures = append(r.failures, check+": "+detail)
}

func runDoctor(cfg config.Config, w io.Writer) doctorResult {
	var res doctorResult
	backend := cfg.Encoder.Backend
	if backend == "" {
		backend = tokenizer.DefaultBackend
	}

	for _, name := range tokenizer.Backends() {
		c, err := tokenizer.Check(name)
		check := "backend " + name
		switch {
		case err != nil:
			res.fail(check, err.Error())
		case c.Available():
			res.pass(check, c.Status.String())
		case name == backend:
			res.fail(check, "missing: "+c.Install)
		default:
			res.skip(check, "missing: "+c.Install)
		}
	}

	if c, err := tokenizer.Check(backend); err != nil {
		res.fail("backend "+backend, err.Error())
	} else if c.Available() {
		opts := tokenizer.LoadOptions{ModelDir: cfg.Encoder.ModelDir}
		languages := cfg.Encoder.Languages
		if len(languages) == 0 {
			languages = tokenizer.DefaultLanguages
		}
		for _, lang := range languages {
			check := fmt.Sprintf("model %s/%s", backend, lang)
			seg, err := tokenizer.Load(backend, lang, opts)
			if err != nil {
				res.fail(check, err.Error())
				continue
			}
			res.pass(check, "installed")
			if c, ok := seg.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}

	if _, err := os.Stat(cfg.Encoder.Vocab); errors.Is(err, fs.ErrNotExist) {
		res.skip("vocabulary "+cfg.Encoder.Vocab, "not built (run quill vocab build)")
	} else if enc, err := openEncoder(cfg); err != nil {
		res.fail("vocabulary "+cfg.Encoder.Vocab, err.Error())
	} else {
		res.pass("vocabulary "+cfg.Encoder.Vocab, fmt.Sprintf("%d tokens, language %s", enc.VocabSize(), enc.Language()))
		_ = enc.Close()
	}

	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	table.AppendBulk(res.rows)
	table.Render()
	return res
}
