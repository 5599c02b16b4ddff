//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

package fulltext

import (
	"strings"
)

// translitPairs maps cyrillic letters to their latin transliteration.
var translitPairs = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// latin sequences back to cyrillic, longest first for the greedy scan.
var translitBack = []struct {
	lat string
	cyr rune
}{
	{"sch", 'щ'}, {"yo", 'ё'}, {"zh", 'ж'}, {"ch", 'ч'}, {"sh", 'ш'},
	{"yu", 'ю'}, {"ya", 'я'},
	{"a", 'а'}, {"b", 'б'}, {"v", 'в'}, {"g", 'г'}, {"d", 'д'}, {"e", 'е'},
	{"z", 'з'}, {"i", 'и'}, {"j", 'й'}, {"k", 'к'}, {"l", 'л'}, {"m", 'м'},
	{"n", 'н'}, {"o", 'о'}, {"p", 'п'}, {"r", 'р'}, {"s", 'с'}, {"t", 'т'},
	{"u", 'у'}, {"f", 'ф'}, {"h", 'х'}, {"c", 'ц'}, {"y", 'ы'},
}

func translitVariant(word string) string {
	hasCyr := false
	for _, r := range word {
		if _, ok := translitPairs[r]; ok {
			hasCyr = true
			break
		}
	}
	var sb strings.Builder
	if hasCyr {
		for _, r := range word {
			if lat, ok := translitPairs[r]; ok {
				sb.WriteString(lat)
			} else {
				sb.WriteRune(r)
			}
		}
		return sb.String()
	}
	for i := 0; i < len(word); {
		matched := false
		for _, p := range translitBack {
			if strings.HasPrefix(word[i:], p.lat) {
				sb.WriteRune(p.cyr)
				i += len(p.lat)
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(word[i])
			i++
		}
	}
	return sb.String()
}

// keyboard layout columns: typing on the wrong layout swaps these 1:1.
const kbLatin = "qwertyuiop[]asdfghjkl;'zxcvbnm,."
const kbCyril = "йцукенгшщзхъфывапролджэячсмитьбю"

var (
	kbLat2Cyr = buildKbMap(kbLatin, kbCyril)
	kbCyr2Lat = buildKbMap(kbCyril, kbLatin)
)

func buildKbMap(from, to string) map[rune]rune {
	m := make(map[rune]rune, 33)
	fr, tr := []rune(from), []rune(to)
	for i := range fr {
		m[fr[i]] = tr[i]
	}
	return m
}

func kbLayoutVariant(word string) string {
	var sb strings.Builder
	changed := false
	for _, r := range word {
		if c, ok := kbLat2Cyr[r]; ok {
			sb.WriteRune(c)
			changed = true
		} else if c, ok := kbCyr2Lat[r]; ok {
			sb.WriteRune(c)
			changed = true
		} else {
			sb.WriteRune(r)
		}
	}
	if !changed {
		return ""
	}
	return sb.String()
}

// stem reduces a word to a crude stem by stripping the longest known
// suffix while keeping at least three runes. Good enough for
// prefix-allowed variant lookups; full morphological stemming is not the
// goal here.
func stem(lang, word string) string {
	var suffixes []string
	switch lang {
	case "en":
		suffixes = enSuffixes
	case "ru":
		suffixes = ruSuffixes
	default:
		return ""
	}
	runes := []rune(word)
	for _, suf := range suffixes {
		sr := []rune(suf)
		if len(runes)-len(sr) >= 3 && strings.HasSuffix(word, suf) {
			return string(runes[:len(runes)-len(sr)])
		}
	}
	return ""
}

var enSuffixes = []string{
	"ational", "iveness", "fulness", "ization",
	"tional", "ements", "ation", "ingly",
	"ment", "ness", "able", "ible", "ions",
	"ing", "ers", "ies", "ion", "est", "ful",
	"ed", "er", "ly", "es",
	"s",
}

var ruSuffixes = []string{
	"иями", "ями", "ами", "иях", "ией", "ого", "его", "ому", "ему",
	"ыми", "ими", "ях", "ам", "ям", "ах", "ов", "ев", "ие", "ье",
	"ой", "ей", "ый", "ий", "ая", "яя", "ое", "ее", "ом", "ем",
	"ть", "л", "а", "я", "о", "е", "у", "ю", "ы", "и", "ь",
}

// synonymTable resolves single-token and multi-token synonyms.
type synonymTable struct {
	single map[string][]string
	multi  []Synonym
}

func newSynonymTable(defs []Synonym) *synonymTable {
	t := &synonymTable{single: map[string][]string{}}
	for _, s := range defs {
		if len(s.Tokens) == 1 {
			tok := normWord(s.Tokens[0])
			t.single[tok] = append(t.single[tok], s.Alternatives...)
		} else if len(s.Tokens) > 1 {
			t.multi = append(t.multi, s)
		}
	}
	return t
}

// Variants returns alternatives of a single query token.
func (t *synonymTable) Variants(token string) []string {
	return t.single[normWord(token)]
}
