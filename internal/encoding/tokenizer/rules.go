package tokenizer

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var builtinModels embed.FS

// ruleFile is the on-disk form of a rule model.
type ruleFile struct {
	Language   string              `yaml:"language"`
	Name       string              `yaml:"name"`
	Extends    string              `yaml:"extends"`
	Normalize  string              `yaml:"normalize"`
	Prefixes   []string            `yaml:"prefixes"`
	Suffixes   []string            `yaml:"suffixes"`
	Infixes    []string            `yaml:"infixes"`
	Exceptions map[string][]string `yaml:"exceptions"`
}

// RuleModel segments text with whitespace splitting followed by prefix,
// suffix, infix and exception rules.
type RuleModel struct {
	lang       string
	name       string
	normalize  bool
	form       norm.Form
	prefixes   []string
	suffixes   []string
	infixes    []string
	exceptions map[string][]string
	// fastPath is false when some affix is plain ASCII, since such an affix
	// could match a word that contains no punctuation.
	fastPath bool
}

type rulesBackend struct{}

func init() { Register(rulesBackend{}) }

func (rulesBackend) Name() string { return "rules" }

func (rulesBackend) Check() Capability { return available("rules") }

func (rulesBackend) InstallHint(lang string, opts LoadOptions) string {
	dir := opts.ModelDir
	if dir == "" {
		dir = "<model-dir>"
	}
	return fmt.Sprintf("write a rule model to %s", filepath.Join(dir, lang+".yaml"))
}

func (b rulesBackend) Load(lang string, opts LoadOptions) (Segmenter, error) {
	rf, err := readRuleFile(lang, opts.ModelDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notInstalled(b.Name(), lang, b.InstallHint(lang, opts))
	}
	if err != nil {
		return nil, err
	}
	return compileRules(lang, rf)
}

// LoadRules parses a rule model from YAML. A model that extends "base" is
// merged with the built-in base rules.
func LoadRules(lang string, data []byte) (*RuleModel, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule model %q: %w", lang, err)
	}
	if rf.Extends != "" {
		parent, err := readRuleFile(rf.Extends, "")
		if err != nil {
			return nil, fmt.Errorf("rule model %q extends %q: %w", lang, rf.Extends, err)
		}
		rf = mergeRules(parent, rf)
	}
	return compileRules(lang, rf)
}

func readRuleFile(lang, dir string) (ruleFile, error) {
	var (
		data []byte
		err  error
	)
	if dir != "" {
		data, err = os.ReadFile(filepath.Join(dir, lang+".yaml"))
	}
	if dir == "" || errors.Is(err, fs.ErrNotExist) {
		data, err = builtinModels.ReadFile("models/" + lang + ".yaml")
	}
	if err != nil {
		return ruleFile{}, err
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return ruleFile{}, fmt.Errorf("parse rule model %q: %w", lang, err)
	}
	if rf.Extends != "" {
		if rf.Extends == lang {
			return ruleFile{}, fmt.Errorf("rule model %q extends itself", lang)
		}
		parent, err := readRuleFile(rf.Extends, dir)
		if err != nil {
			return ruleFile{}, fmt.Errorf("rule model %q extends %q: %w", lang, rf.Extends, err)
		}
		rf = mergeRules(parent, rf)
	}
	return rf, nil
}

func mergeRules(parent, child ruleFile) ruleFile {
	out := ruleFile{
		Language:   child.Language,
		Name:       child.Name,
		Normalize:  parent.Normalize,
		Prefixes:   append(append([]string(nil), parent.Prefixes...), child.Prefixes...),
		Suffixes:   append(append([]string(nil), parent.Suffixes...), child.Suffixes...),
		Infixes:    append(append([]string(nil), parent.Infixes...), child.Infixes...),
		Exceptions: make(map[string][]string, len(parent.Exceptions)+len(child.Exceptions)),
	}
	if child.Normalize != "" {
		out.Normalize = child.Normalize
	}
	for k, v := range parent.Exceptions {
		out.Exceptions[k] = v
	}
	for k, v := range child.Exceptions {
		out.Exceptions[k] = v
	}
	return out
}

func compileRules(lang string, rf ruleFile) (*RuleModel, error) {
	m := &RuleModel{
		lang:       lang,
		name:       rf.Name,
		exceptions: make(map[string][]string, len(rf.Exceptions)),
		fastPath:   true,
	}

	switch strings.ToLower(rf.Normalize) {
	case "", "none":
	case "nfc":
		m.normalize, m.form = true, norm.NFC
	case "nfkc":
		m.normalize, m.form = true, norm.NFKC
	default:
		return nil, fmt.Errorf("rule model %q: unsupported normalization %q", lang, rf.Normalize)
	}

	var err error
	if m.prefixes, err = m.affixes("prefix", rf.Prefixes); err != nil {
		return nil, err
	}
	if m.suffixes, err = m.affixes("suffix", rf.Suffixes); err != nil {
		return nil, err
	}
	if m.infixes, err = m.affixes("infix", rf.Infixes); err != nil {
		return nil, err
	}

	for key, pieces := range rf.Exceptions {
		if strings.Join(pieces, "") != key {
			return nil, fmt.Errorf("rule model %q: exception %q does not concatenate back to its key", lang, key)
		}
		m.exceptions[m.norm(key)] = pieces
	}
	// A multi-character affix on its own is a complete token.
	for _, list := range [][]string{m.prefixes, m.suffixes} {
		for _, a := range list {
			if utf8.RuneCountInString(a) > 1 {
				if _, ok := m.exceptions[a]; !ok {
					m.exceptions[a] = []string{a}
				}
			}
		}
	}
	return m, nil
}

// affixes normalizes, deduplicates and orders affixes longest first.
func (m *RuleModel) affixes(kind string, in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a == "" {
			return nil, fmt.Errorf("rule model %q: empty %s", m.lang, kind)
		}
		a = m.norm(a)
		if seen[a] {
			continue
		}
		seen[a] = true
		if isPlainWord(a) {
			m.fastPath = false
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out, nil
}

func (m *RuleModel) norm(s string) string {
	if m.normalize {
		return m.form.String(s)
	}
	return s
}

func (m *RuleModel) Language() string { return m.lang }

func (m *RuleModel) Backend() string { return "rules" }

// Name is the human readable language name of the model.
func (m *RuleModel) Name() string { return m.name }

// Segment implements Segmenter.
func (m *RuleModel) Segment(text string) []string {
	text = m.norm(text)
	var out []string
	for _, chunk := range strings.Fields(text) {
		out = m.splitChunk(chunk, out)
	}
	return out
}

func (m *RuleModel) splitChunk(chunk string, out []string) []string {
	if pieces, ok := m.exceptions[chunk]; ok {
		return append(out, pieces...)
	}
	if m.fastPath && isPlainWord(chunk) {
		return append(out, chunk)
	}

	var suffixes []string
	s := chunk
	for s != "" {
		if pieces, ok := m.exceptions[s]; ok {
			out = append(out, pieces...)
			s = ""
			break
		}
		if n := matchPrefix(s, m.prefixes); n > 0 {
			out = append(out, s[:n])
			s = s[n:]
			continue
		}
		if n := matchSuffix(s, m.suffixes); n > 0 {
			suffixes = append(suffixes, s[len(s)-n:])
			s = s[:len(s)-n]
			continue
		}
		break
	}
	if s != "" {
		out = m.splitInfixes(s, out)
	}
	for i := len(suffixes) - 1; i >= 0; i-- {
		out = append(out, suffixes[i])
	}
	return out
}

// splitInfixes splits s around infixes that have text on both sides.
func (m *RuleModel) splitInfixes(s string, out []string) []string {
	if len(m.infixes) == 0 || looksLikeURL(s) {
		return append(out, s)
	}
	start := 0
	for i := 0; i < len(s); {
		if i > start {
			if n := matchPrefix(s[i:], m.infixes); n > 0 {
				out = append(out, s[start:i], s[i:i+n])
				i += n
				start = i
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return append(out, s[start:])
}

// matchPrefix returns the byte length of the longest affix that s starts
// with, ignoring case, provided it leaves at least one byte behind.
func matchPrefix(s string, affixes []string) int {
	for _, a := range affixes {
		if len(a) < len(s) && strings.EqualFold(s[:len(a)], a) {
			return len(a)
		}
	}
	return 0
}

func matchSuffix(s string, affixes []string) int {
	for _, a := range affixes {
		if len(a) < len(s) && strings.EqualFold(s[len(s)-len(a):], a) {
			return len(a)
		}
	}
	return 0
}

func looksLikeURL(s string) bool {
	if strings.Contains(s, "://") || strings.HasPrefix(strings.ToLower(s), "www.") {
		return true
	}
	at := strings.IndexByte(s, '@')
	return at > 0 && strings.IndexByte(s[at:], '.') > 1 && !strings.ContainsFunc(s, unicode.IsSpace)
}
