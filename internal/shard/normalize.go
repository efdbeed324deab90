package shard

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// MiscKey is the reserved shard for names without any letter or digit.
const MiscKey = "misc"

// Normalize folds case, removes template argument lists and trims
// whitespace. An unbalanced '<' drops the rest of the name.
func Normalize(name string) string {
	return strings.TrimSpace(fold(StripTemplates(name)))
}

// fold uses a fresh Caser per call; a Caser is stateful and must not be
// shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

// StripTemplates removes balanced (possibly nested) "<...>" groups and
// collapses runs of whitespace. The
// "operator<" family keeps its angle brackets since they are the name.
func StripTemplates(name string) string {
	if !strings.ContainsRune(name, '<') {
		return collapseSpaces(name)
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if depth == 0 && (c == '<' || c == '>') && isOperatorTail(name, i) {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			} else {
				b.WriteByte(c)
			}
		default:
			if depth == 0 {
				b.WriteByte(c)
			}
		}
	}
	return collapseSpaces(b.String())
}

// isOperatorTail reports whether name[i] is part of an operator symbol such
// as "operator<<" or "operator<=".
func isOperatorTail(name string, i int) bool {
	j := i
	for j > 0 && strings.ContainsRune("<>=", rune(name[j-1])) {
		j--
	}
	return strings.HasSuffix(strings.TrimRight(name[:j], " "), "operator")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// KeyFunc maps a display name to a shard key.
type KeyFunc func(displayName string) string

// DefaultKey shards on the first character of the normalized name.
var DefaultKey KeyFunc = PrefixKey(1)

// PrefixKey returns a KeyFunc that keys names on up to n leading letters or
// digits of the normalized name. A name starting with punctuation (such as
// "~" or "_") is keyed on that single character, and a name without any
// letter or digit goes to MiscKey.
func PrefixKey(n int) KeyFunc {
	if n < 1 {
		n = 1
	}
	return func(displayName string) string {
		norm := Normalize(displayName)
		if !hasAlnum(norm) {
			return MiscKey
		}
		runes := []rune(norm)
		if !isAlnum(runes[0]) {
			return string(runes[0])
		}
		end := 0
		for end < len(runes) && end < n && isAlnum(runes[end]) {
			end++
		}
		return string(runes[:end])
	}
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, isAlnum) >= 0
}

// IsMiscName reports whether the name would land in the misc shard.
func IsMiscName(name string) bool {
	return !hasAlnum(Normalize(name))
}
