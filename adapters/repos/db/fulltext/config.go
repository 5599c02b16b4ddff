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

// Package fulltext implements the ranked text search engine: suffix-array
// word lookup with variant expansion (translit, keyboard layout, stems,
// synonyms, typos) and a BM25+position merge producing per-document ranks.
package fulltext

// Relevancy percentages of the match kinds.
const (
	fullMatchProc = 100
	prefixMinProc = 50
	suffixMinProc = 10
	typoProc      = 85
	typoStepProc  = 15
	stemProcDecr  = 15
)

// Synonym maps query tokens to the alternatives searched in documents.
type Synonym struct {
	Tokens       []string `json:"tokens" yaml:"tokens"`
	Alternatives []string `json:"alternatives" yaml:"alternatives"`
}

// FieldConfig carries per-field rank blending knobs.
type FieldConfig struct {
	Bm25Boost      float64 `json:"bm25_boost" yaml:"bm25_boost"`
	Bm25Weight     float64 `json:"bm25_weight" yaml:"bm25_weight"`
	PositionBoost  float64 `json:"position_boost" yaml:"position_boost"`
	PositionWeight float64 `json:"position_weight" yaml:"position_weight"`
	TermLenBoost   float64 `json:"term_len_boost" yaml:"term_len_boost"`
	TermLenWeight  float64 `json:"term_len_weight" yaml:"term_len_weight"`
}

// Config tunes the full-text index and selector.
type Config struct {
	Bm25Boost           float64   `json:"bm25_boost" yaml:"bm25_boost"`
	Bm25Weight          float64   `json:"bm25_weight" yaml:"bm25_weight"`
	DistanceBoost       float64   `json:"distance_boost" yaml:"distance_boost"`
	DistanceWeight      float64   `json:"distance_weight" yaml:"distance_weight"`
	TermLenBoost        float64   `json:"term_len_boost" yaml:"term_len_boost"`
	TermLenWeight       float64   `json:"term_len_weight" yaml:"term_len_weight"`
	PositionBoost       float64   `json:"position_boost" yaml:"position_boost"`
	PositionWeight      float64   `json:"position_weight" yaml:"position_weight"`
	FullMatchBoost      float64   `json:"full_match_boost" yaml:"full_match_boost"`
	MinRelevancy        float64   `json:"min_relevancy" yaml:"min_relevancy"`
	MaxTyposInWord      int       `json:"max_typos_in_word" yaml:"max_typos_in_word"`
	MaxTypoLen          int       `json:"max_typo_len" yaml:"max_typo_len"`
	MergeLimit          int       `json:"merge_limit" yaml:"merge_limit"`
	PartialMatchDecr    int       `json:"partial_match_decrease" yaml:"partial_match_decrease"`
	SumRanksByFieldsK   float64   `json:"summation_ranks_by_fields_ratio" yaml:"summation_ranks_by_fields_ratio"`
	Stemmers            []string  `json:"stemmers" yaml:"stemmers"`
	EnableTranslit      bool      `json:"enable_translit" yaml:"enable_translit"`
	EnableKbLayout      bool      `json:"enable_kb_layout" yaml:"enable_kb_layout"`
	EnableNumbersSearch bool      `json:"enable_numbers_search" yaml:"enable_numbers_search"`
	StopWords           []string  `json:"stop_words" yaml:"stop_words"`
	Synonyms            []Synonym `json:"synonyms" yaml:"synonyms"`
	ExtraWordSymbols    string    `json:"extra_word_symbols" yaml:"extra_word_symbols"`

	// Fields overrides blending per indexed field; empty entries fall back
	// to the global knobs.
	Fields []FieldConfig `json:"fields" yaml:"fields"`
}

func DefaultConfig() Config {
	return Config{
		Bm25Boost:        1.0,
		Bm25Weight:       0.5,
		DistanceBoost:    1.0,
		DistanceWeight:   0.5,
		TermLenBoost:     1.0,
		TermLenWeight:    0.3,
		PositionBoost:    1.0,
		PositionWeight:   0.1,
		FullMatchBoost:   1.1,
		MinRelevancy:     0.05,
		MaxTyposInWord:   1,
		MaxTypoLen:       15,
		MergeLimit:       20000,
		PartialMatchDecr: 15,
		Stemmers:         []string{"en", "ru"},
		EnableTranslit:   true,
		EnableKbLayout:   true,
		ExtraWordSymbols: "/-+",
	}
}

func (c *Config) fieldCfg(field int) FieldConfig {
	var fc FieldConfig
	if field < len(c.Fields) {
		fc = c.Fields[field]
	}
	if fc.Bm25Boost == 0 {
		fc.Bm25Boost = c.Bm25Boost
	}
	if fc.Bm25Weight == 0 {
		fc.Bm25Weight = c.Bm25Weight
	}
	if fc.PositionBoost == 0 {
		fc.PositionBoost = c.PositionBoost
	}
	if fc.PositionWeight == 0 {
		fc.PositionWeight = c.PositionWeight
	}
	if fc.TermLenBoost == 0 {
		fc.TermLenBoost = c.TermLenBoost
	}
	if fc.TermLenWeight == 0 {
		fc.TermLenWeight = c.TermLenWeight
	}
	return fc
}

// maxTypos is the legacy two-per-word knob kept for the typo-map split; the
// half map holds typos for maxTypos/2 deletions.
func (c *Config) maxTypos() int { return 2 * c.MaxTyposInWord }
