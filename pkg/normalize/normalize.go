// Package normalize cleans administrative names read from files whose
// encoding is not UTF-8.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer transforms a name before it is stored.
type Normalizer func(string) string

var stripAccents = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldAccents strips combining marks (Nana Mambéré -> Nana Mambere) and
// applies compatibility decomposition. Case is preserved.
func FoldAccents(s string) string {
	result, _, err := transform.String(stripAccents, s)
	if err != nil {
		return s
	}
	return result
}

// RepairLatin1 undoes UTF-8 text that was decoded as latin-1 ("MambÃ©rÃ©"
// becomes "Mambéré"). Input holding runes outside latin-1, or whose bytes
// are not valid UTF-8 once re-encoded, was not mis-decoded and is returned
// unchanged.
func RepairLatin1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		c, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			return s
		}
		b.WriteByte(c)
	}
	repaired := b.String()
	if !utf8.ValidString(repaired) {
		return s
	}
	return repaired
}

// Latin1Name repairs then folds a name read from a latin-1 file.
func Latin1Name(s string) string {
	return FoldAccents(RepairLatin1(s))
}

// None returns the name unchanged.
func None(s string) string {
	return s
}

// ForEncoding returns the name normalizer to use for a file read with enc.
// UTF-8 files are left untouched, latin-1 files are repaired and folded,
// other encodings are only folded.
func ForEncoding(enc string) Normalizer {
	switch {
	case IsUTF8(enc):
		return None
	case IsLatin1(enc):
		return Latin1Name
	}
	return FoldAccents
}

// HasNonLatin reports whether s contains a letter outside the Latin script.
func HasNonLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// IsUTF8 reports whether enc names UTF-8 (utf-8, UTF8, utf_8, utf-8-sig, "").
func IsUTF8(enc string) bool {
	switch canonicalEncoding(enc) {
	case "", "utf8", "utf8sig":
		return true
	}
	return false
}

// IsLatin1 reports whether enc names ISO-8859-1 (latin-1, latin1, iso-8859-1, l1).
func IsLatin1(enc string) bool {
	switch canonicalEncoding(enc) {
	case "latin1", "iso88591", "l1":
		return true
	}
	return false
}

var encodingSeparators = strings.NewReplacer("-", "", "_", "")

func canonicalEncoding(enc string) string {
	return encodingSeparators.Replace(strings.ToLower(strings.TrimSpace(enc)))
}
