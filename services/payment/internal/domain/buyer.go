package domain

import (
	"strings"
	"unicode"
)

// DefaultBuyerName подставляется, когда от имени почти ничего не осталось.
const DefaultBuyerName = "Cliente"

// minBuyerNameLen — минимальная длина имени в символах.
const minBuyerNameLen = 2

// SanitizeBuyerName оставляет буквы любого алфавита, пробелы, дефисы и апострофы.
// Пробелы схлопываются, края обрезаются.
//
//	SanitizeBuyerName("John123 O'Brien-Smith!!") == "John O'Brien-Smith"
func SanitizeBuyerName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), r == '-', r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if len([]rune(cleaned)) < minBuyerNameLen {
		return DefaultBuyerName
	}
	return cleaned
}
