package encoding

import (
	"math/rand"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
	"sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore", "et", "dolore",
	"magna", "aliqua", "ut", "enim", "ad", "minim", "veniam", "quis", "nostrud",
	"exercitation", "ullamco", "laboris", "nisi", "ut", "aliquip", "ex", "ea",
	"commodo", "consequat", "duis", "aute", "irure", "dolor", "in", "reprehenderit",
	"in", "voluptate", "velit", "esse", "cillum", "dolore", "eu", "fugiat", "nulla",
	"pariatur", "excepteur", "sint", "occaecat", "cupidatat", "non", "proident",
	"sunt", "in", "culpa", "qui", "officia", "deserunt", "mollit", "anim", "id", "est", "laborum",
	// contractions and hyphenation so the segmenter has affixes to split
	"don't", "isn't", "it's", "we're", "they'll", "well-known", "e-mail",
}

var loremEndings = []string{".", ".", ".", "?", "!"}

// GenerateLorem generates paragraphs of Lorem Ipsum text with punctuation.
// The same seed always yields the same paragraphs.
func GenerateLorem(paragraphs int, seed int64) []string {
	r := rand.New(rand.NewSource(seed))
	title := cases.Title(language.Und)
	result := make([]string, paragraphs)

	for i := 0; i < paragraphs; i++ {
		sentences := 3 + r.Intn(5)
		para := make([]string, sentences)
		for j := 0; j < sentences; j++ {
			wordCount := 5 + r.Intn(10)
			sentence := make([]string, wordCount)
			for k := 0; k < wordCount; k++ {
				sentence[k] = loremWords[r.Intn(len(loremWords))]
			}
			// Capitalize first word
			sentence[0] = title.String(sentence[0])
			if wordCount > 6 && r.Intn(3) == 0 {
				sentence[2] += ","
			}
			para[j] = strings.Join(sentence, " ") + loremEndings[r.Intn(len(loremEndings))]
		}
		result[i] = strings.Join(para, " ")
	}

	return result
}
