package player

import (
	"strings"

	"golang.org/x/text/language"
)

// Media containers tag tracks with whichever ISO 639 variant the muxer
// preferred, so "fr", "fra" (terminology) and "fre" (bibliographic) all show
// up in the wild for the same language. x/text/language canonicalizes the
// 2-letter and terminology codes, but the bibliographic set is not valid
// BCP 47 and needs an explicit table.
var bibliographicCodes = map[string]string{
	"alb": "sq",
	"arm": "hy",
	"baq": "eu",
	"bur": "my",
	"chi": "zh",
	"cze": "cs",
	"dut": "nl",
	"fre": "fr",
	"geo": "ka",
	"ger": "de",
	"gre": "el",
	"ice": "is",
	"mac": "mk",
	"may": "ms",
	"mao": "mi",
	"per": "fa",
	"rum": "ro",
	"slo": "sk",
	"tib": "bo",
	"wel": "cy",
}

// normalizeLang reduces a language code to its canonical 2-letter base form
// where one exists. Unrecognized codes pass through lowercased so two tracks
// tagged with the same unknown code still match each other.
func normalizeLang(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return ""
	}
	if base, ok := bibliographicCodes[c]; ok {
		return base
	}
	tag, err := language.Parse(c)
	if err != nil {
		return c
	}
	base, conf := tag.Base()
	if conf < language.High {
		return c
	}
	return base.String()
}

// langMatches reports whether two language codes denote the same language,
// treating 2-letter and 3-letter variants as equal. Empty or undetermined
// codes never match anything.
func langMatches(a, b string) bool {
	na, nb := normalizeLang(a), normalizeLang(b)
	if na == "" || nb == "" || na == "und" || nb == "und" {
		return false
	}
	return na == nb
}
