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

import "math"

const (
	bm25K1 = 2.0
	bm25B  = 0.75
)

// idf weighs rare words higher: log of inverse document frequency, floored
// at zero so stop-word-like terms cannot turn negative.
func idf(totalDocs, matchedDocs int) float64 {
	if matchedDocs == 0 || totalDocs == 0 {
		return 0
	}
	v := math.Log((float64(totalDocs)-float64(matchedDocs)+0.5)/(float64(matchedDocs)+0.5)) + 1
	if v < 0 {
		return 0
	}
	return v
}

// bm25score is the classic per-field BM25 term score with document length
// normalization against the field's average word count.
func bm25score(termFreq, mostFreqWordCount, wordsInField int, avgWordsInField float64) float64 {
	if wordsInField == 0 || avgWordsInField == 0 {
		return 0
	}
	tf := float64(termFreq)
	return tf * (bm25K1 + 1.0) / (tf + bm25K1*(1.0-bm25B+bm25B*float64(wordsInField)/avgWordsInField))
}

// pos2rank is the piecewise positional boost: earlier hits in the field
// rank higher, flattening out after 100k positions.
func pos2rank(pos int) float64 {
	switch {
	case pos <= 10:
		return 1.0 - float64(pos)/100.0
	case pos <= 100:
		return 0.9 - float64(pos)/1000.0
	case pos <= 1000:
		return 0.8 - float64(pos)/10000.0
	case pos <= 10000:
		return 0.7 - float64(pos)/100000.0
	case pos <= 100000:
		return 0.6 - float64(pos)/1000000.0
	default:
		return 0.5
	}
}

// bound blends a raw factor into [1-weight, 1-weight+k*boost*weight].
func bound(k, weight, boost float64) float64 {
	return (1.0 - weight) + k*boost*weight
}
