package scalarindex

import (
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// TokenizeOptions configures the FTS tokenizer (spec §4.6: "simple" and
// "whitespace" base tokenizers plus lower_case/stem/remove_stop_words/
// ascii_folding/max_token_length filters).
type TokenizeOptions struct {
	LowerCase       bool
	Stem            bool
	RemoveStopWords bool
	ASCIIFolding    bool
	MaxTokenLength  int
	Whitespace      bool // true: split on whitespace only; false: prose's word tokenizer
}

func DefaultTokenizeOptions() TokenizeOptions {
	return TokenizeOptions{LowerCase: true, Stem: true, RemoveStopWords: true, ASCIIFolding: true, MaxTokenLength: 64}
}

// Tokenize splits text into terms under opts. Word boundaries come from
// prose/v3's document tokenizer, or a plain whitespace split when
// opts.Whitespace is set. Stemming and stop-word removal are hand-rolled
// here: prose/v3 is a tagging/NER library, not a stemmer, and no
// standalone stemmer package was available in the retrieval pack, so
// this applies a small fixed-suffix stemmer and a static English
// stop-word list rather than reaching for an unavailable dependency.
func Tokenize(text string, opts TokenizeOptions) []string {
	var words []string
	if opts.Whitespace {
		words = strings.Fields(text)
	} else {
		doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
		if err != nil {
			words = strings.Fields(text)
		} else {
			for _, tok := range doc.Tokens() {
				w := strings.TrimSpace(tok.Text)
				if w == "" || isPunctuation(w) {
					continue
				}
				words = append(words, w)
			}
		}
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		if opts.ASCIIFolding {
			w = foldASCII(w)
		}
		if opts.LowerCase {
			w = strings.ToLower(w)
		}
		if opts.MaxTokenLength > 0 && len(w) > opts.MaxTokenLength {
			w = w[:opts.MaxTokenLength]
		}
		if opts.RemoveStopWords && stopWords[w] {
			continue
		}
		if opts.Stem {
			w = stem(w)
		}
		if w == "" {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isPunctuation(w string) bool {
	for _, r := range w {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

func foldASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		switch {
		case strings.ContainsRune("áàâãäå", r):
			b.WriteRune('a')
		case strings.ContainsRune("éèêë", r):
			b.WriteRune('e')
		case strings.ContainsRune("íìîï", r):
			b.WriteRune('i')
		case strings.ContainsRune("óòôõö", r):
			b.WriteRune('o')
		case strings.ContainsRune("úùûü", r):
			b.WriteRune('u')
		case strings.ContainsRune("ñ", r):
			b.WriteRune('n')
		case strings.ContainsRune("ç", r):
			b.WriteRune('c')
		default:
			// drop other non-ASCII combining/diacritic runes
		}
	}
	return b.String()
}

// stem applies a minimal Porter-style suffix stripper: enough to merge
// common plural/verb-form variants for BM25 recall without pulling in a
// full stemming dependency.
func stem(w string) string {
	suffixes := []string{"ational", "tional", "ing", "edly", "ed", "ies", "es", "s"}
	for _, suf := range suffixes {
		if len(w) > len(suf)+2 && strings.HasSuffix(w, suf) {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

var stopWords = buildStopWords()

func buildStopWords() map[string]bool {
	list := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "or", "not",
		"have", "had", "what", "when", "where", "who", "which", "their",
	}
	m := make(map[string]bool, len(list))
	for _, w := range list {
		m[w] = true
	}
	return m
}
