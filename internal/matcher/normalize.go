package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Danish letters are transliterated the way Danes do in ASCII contexts,
// before generic diacritic folding handles the rest (é, ü, ...).
var danishReplacer = strings.NewReplacer(
	"æ", "ae", "Æ", "ae",
	"ø", "oe", "Ø", "oe",
	"å", "aa", "Å", "aa",
)

// foldTransformer builds a fresh diacritic-stripping transformer; chained
// transformers carry internal buffers and are not safe to share.
func foldTransformer() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Legal entity suffixes stripped before name comparison.
var legalSuffixRe = regexp.MustCompile(`\b(a/s|aps|i/s|p/s|k/s|ivs|smba|amba|fmba|a\.m\.b\.a\.?)\b\.?`)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// normalizeName lowercases, transliterates Danish letters, folds remaining
// diacritics, strips legal suffixes and punctuation, and collapses
// whitespace. Two names comparing equal after this are an exact match.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = danishReplacer.Replace(s)
	if folded, _, err := transform.String(foldTransformer(), s); err == nil {
		s = folded
	}
	s = legalSuffixRe.ReplaceAllString(s, " ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokens splits a normalized name into comparison tokens, dropping
// single-letter noise.
func tokens(normalized string) []string {
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}

// tokenOverlap returns the fraction of query tokens present in the
// candidate tokens, in [0,1].
func tokenOverlap(query, candidate []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidate))
	for _, tok := range candidate {
		set[tok] = struct{}{}
	}
	matched := 0
	for _, tok := range query {
		if _, ok := set[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
