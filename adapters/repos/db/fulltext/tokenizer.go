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
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Token is one word of a document field with its ordinal position.
type Token struct {
	Text string
	Pos  int
}

type tokenizer struct {
	extraSymbols map[rune]bool
	stopWords    map[string]bool
}

func newTokenizer(cfg *Config) *tokenizer {
	t := &tokenizer{
		extraSymbols: make(map[rune]bool, len(cfg.ExtraWordSymbols)),
		stopWords:    make(map[string]bool, len(cfg.StopWords)),
	}
	for _, r := range cfg.ExtraWordSymbols {
		t.extraSymbols[r] = true
	}
	for _, w := range cfg.StopWords {
		t.stopWords[normWord(w)] = true
	}
	return t
}

func (t *tokenizer) isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || t.extraSymbols[r]
}

// Tokenize splits a field into lowercase NFC-normalized words, dropping
// stop words but keeping their positions occupied so distances stay
// faithful to the source text.
func (t *tokenizer) Tokenize(text string) []Token {
	var out []Token
	var sb strings.Builder
	pos := 0
	flush := func() {
		if sb.Len() == 0 {
			return
		}
		w := normWord(sb.String())
		sb.Reset()
		if !t.stopWords[w] {
			out = append(out, Token{Text: w, Pos: pos})
		}
		pos++
	}
	for _, r := range text {
		if t.isWordRune(r) {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func normWord(w string) string {
	return strings.ToLower(norm.NFC.String(w))
}
