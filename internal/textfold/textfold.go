// Package textfold folds Portuguese spreadsheet text for comparisons:
// accents removed, upper case, whitespace collapsed.
package textfold

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var reToken = regexp.MustCompile(`[A-Z0-9]+`)

// Fold returns s without diacritics, upper-cased, trimmed and with inner
// whitespace collapsed to single spaces. "Descrição  do serviço" becomes
// "DESCRICAO DO SERVICO".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(out)), " ")
}

// Tokens splits the folded form of s into alphanumeric tokens.
func Tokens(s string) []string {
	return reToken.FindAllString(Fold(s), -1)
}

// Similarity is the normalized Levenshtein similarity of a and b in [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein(a, b)
	denom := len([]rune(a))
	if n := len([]rune(b)); n > denom {
		denom = n
	}
	return math.Max(0, 1-(float64(dist)/float64(denom)))
}

func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) < len(br) {
		ar, br = br, ar
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ar {
		curr := make([]int, len(br)+1)
		curr[0] = i + 1
		for j, cb := range br {
			ins := curr[j] + 1
			del := prev[j+1] + 1
			sub := prev[j]
			if ca != cb {
				sub++
			}
			curr[j+1] = min(ins, del, sub)
		}
		prev = curr
	}
	return prev[len(prev)-1]
}
