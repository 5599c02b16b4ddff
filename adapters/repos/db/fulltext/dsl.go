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
	"math"
	"strings"
	"unicode"

	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
)

// FieldOpt is the per-field boost of one term.
type FieldOpt struct {
	Boost       float64
	NeedSumRank bool
}

// TermOpts carries the per-term search options parsed from the text query.
type TermOpts struct {
	Op           queries.Op
	Exact        bool
	Typos        bool
	Pref         bool
	Suff         bool
	Number       bool
	Boost        float64
	TermLenBoost float64
	Distance     int
	Qpos         int
	FieldOpts    []FieldOpt
}

// Term is one pattern of the parsed full-text query.
type Term struct {
	Pattern string
	Opts    TermOpts
}

// ParseQuery parses the minimal text query syntax: space separated terms,
// '+' requires (AND), '-' excludes (NOT), '=' exact match, a leading or
// trailing '*' permits suffix/prefix expansion. Typos follow the config
// unless the term is exact.
func ParseQuery(cfg *Config, numFields int, text string) ([]Term, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	terms := make([]Term, 0, len(fields))
	for _, raw := range fields {
		opts := TermOpts{
			Op:           queries.OpOr,
			Typos:        cfg.MaxTyposInWord > 0,
			Boost:        1.0,
			TermLenBoost: 1.0,
			Distance:     math.MaxInt32,
		}
		for len(raw) > 0 {
			if raw[0] == '+' {
				opts.Op = queries.OpAnd
			} else if raw[0] == '-' {
				opts.Op = queries.OpNot
			} else if raw[0] == '=' {
				opts.Exact = true
				opts.Typos = false
			} else if raw[0] == '*' {
				opts.Suff = true
			} else {
				break
			}
			raw = raw[1:]
		}
		if strings.HasSuffix(raw, "*") {
			opts.Pref = true
			raw = strings.TrimSuffix(raw, "*")
		}
		w := normWord(raw)
		if w == "" {
			continue
		}
		opts.Number = isNumber(w)
		opts.Qpos = len(terms)
		opts.FieldOpts = make([]FieldOpt, numFields)
		for i := range opts.FieldOpts {
			opts.FieldOpts[i] = FieldOpt{Boost: 1.0}
		}
		terms = append(terms, Term{Pattern: w, Opts: opts})
	}
	if len(terms) == 0 {
		return nil, terrors.New(terrors.InvalidQuery, "fulltext query has no terms")
	}
	return terms, nil
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
