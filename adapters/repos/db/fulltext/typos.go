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

// Typos are modeled by symmetric letter deletion: the index stores every
// deletion form of its words and the lookup enumerates deletion forms of
// the query term, which covers dropped, added and substituted letters
// without enumerating the alphabet. mktypos emits the unmodified word
// first, then every deletion form down to maxTypos removals; level counts
// the deletions still allowed (level == maxTypos for the unmodified word).
func mktypos(word string, maxTypos, maxTypoLen int, cb func(typo string, level int)) {
	runes := []rune(word)
	if len(runes) > maxTypoLen || maxTypos <= 0 {
		return
	}
	cb(word, maxTypos)
	seen := map[string]bool{word: true}
	var rec func(w []rune, level int)
	rec = func(w []rune, level int) {
		if level <= 0 || len(w) <= 1 {
			return
		}
		for i := range w {
			typo := make([]rune, 0, len(w)-1)
			typo = append(typo, w[:i]...)
			typo = append(typo, w[i+1:]...)
			s := string(typo)
			if !seen[s] {
				seen[s] = true
				cb(s, level-1)
			}
			rec(typo, level-1)
		}
	}
	rec(runes, maxTypos)
}

// typoVariants collects every deletion form keyed by remaining level,
// used on the build side to fill the typo maps.
func typoVariants(word string, maxTypos, maxTypoLen int) map[string]int {
	out := map[string]int{}
	mktypos(word, maxTypos, maxTypoLen, func(typo string, level int) {
		if cur, ok := out[typo]; !ok || level > cur {
			out[typo] = level
		}
	})
	return out
}
