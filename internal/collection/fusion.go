package collection

import (
	"sort"

	"github.com/hyperjump/pachat/internal/keyword"
	"github.com/hyperjump/pachat/internal/models"
)

const (
	defaultKeywordWeight  = 0.5
	defaultSemanticWeight = 0.5
)

// fusedHit is one related-document candidate with its keyword and semantic scores.
type fusedHit struct {
	collection string
	doc        *models.IndexedDocument
	keyword    float64
	semantic   float64
	score      float64
}

func hitKey(collection, id string) string {
	return collection + "/" + id
}

// normalizeKeywordScores scales keyword scores to [0,1] by the maximum, keyed by hitKey.
func normalizeKeywordScores(hits []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[hitKey(h.Collection, h.ID)] = h.Score / maxScore
		} else {
			normalized[hitKey(h.Collection, h.ID)] = 0
		}
	}
	return normalized
}

// fuse sets each hit's weighted score and sorts hits best first. Ties keep keyword order.
func fuse(hits []*fusedHit, keywordWeight, semanticWeight float64) {
	for _, h := range hits {
		h.score = keywordWeight*h.keyword + semanticWeight*h.semantic
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
}
