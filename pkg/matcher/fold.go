package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace, so
// "  MARINGÁ  3" and "maringa 3" compare equal.
func Fold(s string) string {
	// Transformers carry state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// noiseWords are dropped from extracted tokens.
var noiseWords = map[string]bool{"loja": true, "store": true, "-": true}

// ExtractToken pulls the store token out of a campaign title. The first
// bracketed segment wins; otherwise the segment after the last "|" or
// " - " is used. Noise words are removed and whitespace collapsed:
//
//	"Black Friday | Maringá Loja 3"  -> "Maringá 3"
//	"[Londrina] Dia das Mães"        -> "Londrina"
func ExtractToken(title string) string {
	seg := strings.TrimSpace(title)
	if open := strings.Index(seg, "["); open >= 0 {
		if end := strings.Index(seg[open+1:], "]"); end >= 0 {
			seg = seg[open+1 : open+1+end]
			return clean(seg)
		}
	}

	pipe := strings.LastIndex(seg, "|")
	dash := strings.LastIndex(seg, " - ")
	switch {
	case pipe > dash:
		seg = seg[pipe+1:]
	case dash >= 0:
		seg = seg[dash+len(" - "):]
	}
	return clean(seg)
}

func clean(seg string) string {
	var kept []string
	for _, w := range strings.Fields(seg) {
		if noiseWords[Fold(w)] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
