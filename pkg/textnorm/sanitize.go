package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Sanitize cleans a raw cell exported from survey tools before scoring:
//  1. HTML / XML markup is removed, adjacent text nodes are joined by a space
//  2. control characters, emoji and private-use runes are dropped
//  3. whitespace runs collapse to one space and the result is trimmed
//
// Letters, digits and punctuation (including "!!!" and "???" runs) survive
// untouched, so the signal detectors see the same intensity cues.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	if strings.ContainsRune(text, '<') {
		text = stripMarkup(text)
	}
	return squeeze(text)
}

// discardTags lists elements whose text content never belongs to a comment.
var discardTags = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
}

func stripMarkup(text string) string {
	z := html.NewTokenizer(strings.NewReader(text))
	var b strings.Builder
	b.Grow(len(text))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if discardTags[string(name)] && tt == html.StartTagToken {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if discardTags[string(name)] && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := string(z.Text())
			if strings.TrimSpace(t) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t)
		}
	}
	return b.String()
}

// squeeze drops unprintable runes and collapses whitespace in one pass.
func squeeze(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		if !printable(r) {
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimRight(b.String(), " ")
}

func printable(r rune) bool {
	switch {
	case unicode.Is(unicode.Cc, r):
		return false
	case r >= 0xFE00 && r <= 0xFE1F: // variation selectors
		return false
	case r >= 0xD800 && r <= 0xF8FF: // surrogates, private use
		return false
	case r >= 0xF0000:
		return false
	case r >= 0x1F100 && r <= 0x1FAFF: // enclosed alnum, pictographs, emoticons
		return false
	case r >= 0x2600 && r <= 0x27B0: // misc symbols, dingbats
		return false
	}
	return true
}
