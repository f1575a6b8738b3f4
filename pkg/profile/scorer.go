// pkg/profile/scorer.go
package profile

import (
	"math"
	"strings"
)

// IsBlankMarker reports whether a preview cell counts as empty
func IsBlankMarker(v string) bool {
	s := strings.TrimSpace(v)
	return s == "" || s == "nan" || s == "None"
}

// Scorer rates how plausible a row is as the header row of a sheet
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the weights in use
func (s *Scorer) Weights() Weights {
	return s.weights
}

// ScoreRow returns a score >= 0 for a candidate row at the given position.
// Rows with no non-blank value score 0.
func (s *Scorer) ScoreRow(values []string, rowIndex int) float64 {
	w := s.weights

	nonBlank := make([]string, 0, len(values))
	for _, v := range values {
		if !IsBlankMarker(v) {
			nonBlank = append(nonBlank, strings.TrimSpace(v))
		}
	}
	if len(nonBlank) == 0 {
		return 0
	}

	score := w.Density * float64(len(nonBlank))

	dataLike := 0
	for _, v := range nonBlank {
		lower := strings.ToLower(v)

		if containsAny(lower, w.HeaderWords) {
			score += w.HeaderWord
		}

		if strings.Contains(v, " ") && len(strings.Fields(v)) <= w.ShortPhraseMaxWords {
			score += w.ShortPhrase
		}

		if LooksLikeData(v) {
			dataLike++
		} else {
			score += w.NotData
		}

		if containsAny(lower, w.Connectors) {
			score += w.Connector
		}
	}

	if float64(dataLike) > w.DataLikeRatio*float64(len(nonBlank)) {
		score += w.DataLikePenalty
	}

	switch {
	case rowIndex == 0:
		score += w.FirstRow
	case rowIndex == 1:
		score += w.SecondRow
	case rowIndex > w.DeepRowAfter:
		score += w.DeepRowPenalty
	}

	distinct := make(map[string]struct{}, len(nonBlank))
	for _, v := range nonBlank {
		distinct[v] = struct{}{}
	}
	if float64(len(distinct)) < w.DistinctRatio*float64(len(nonBlank)) {
		score += w.DuplicatePenalty
	}

	joined := strings.ToLower(strings.Join(nonBlank, " "))
	hits := 0
	for _, word := range w.DomainWords {
		if strings.Contains(joined, word) {
			hits++
		}
	}
	if hits >= w.DomainMinHits {
		score += w.DomainBonus
	}

	return math.Max(0, score)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
