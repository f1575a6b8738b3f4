// pkg/profile/weights.go
package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Weights holds every tunable constant of the header row scorer.
// Penalties are stored as negative numbers.
type Weights struct {
	Density             float64 `json:"density"`
	HeaderWord          float64 `json:"header_word"`
	ShortPhrase         float64 `json:"short_phrase"`
	ShortPhraseMaxWords int     `json:"short_phrase_max_words"`
	NotData             float64 `json:"not_data"`
	Connector           float64 `json:"connector"`
	DataLikePenalty     float64 `json:"data_like_penalty"`
	DataLikeRatio       float64 `json:"data_like_ratio"`
	FirstRow            float64 `json:"first_row"`
	SecondRow           float64 `json:"second_row"`
	DeepRowPenalty      float64 `json:"deep_row_penalty"`
	DeepRowAfter        int     `json:"deep_row_after"`
	DuplicatePenalty    float64 `json:"duplicate_penalty"`
	DistinctRatio       float64 `json:"distinct_ratio"`
	DomainBonus         float64 `json:"domain_bonus"`
	DomainMinHits       int     `json:"domain_min_hits"`

	HeaderWords []string `json:"header_words"`
	Connectors  []string `json:"connectors"`
	DomainWords []string `json:"domain_words"`
}

// DefaultWeights returns the weights tuned against the reseller's exports
func DefaultWeights() Weights {
	return Weights{
		Density:             2.0,
		HeaderWord:          5.0,
		ShortPhrase:         2.0,
		ShortPhraseMaxWords: 5,
		NotData:             2.0,
		Connector:           3.0,
		DataLikePenalty:     -8.0,
		DataLikeRatio:       0.6,
		FirstRow:            3.0,
		SecondRow:           2.0,
		DeepRowPenalty:      -2.0,
		DeepRowAfter:        8,
		DuplicatePenalty:    -4.0,
		DistinctRatio:       0.7,
		DomainBonus:         10.0,
		DomainMinHits:       3,
		HeaderWords: []string{
			"fecha", "date", "nombre", "producto", "cantidad", "precio", "total",
			"subtotal", "codigo", "código", "descripcion", "descripción", "cliente",
			"comprobante", "ganancia", "categoria", "categoría", "tipo", "estado",
			"id", "num", "número", "un", "unidad", "valor",
		},
		Connectors:  []string{"del ", "de ", "un.", "nº", "num"},
		DomainWords: []string{"fecha", "producto", "cantidad", "precio", "total"},
	}
}

// LoadWeightsFile overlays the keys present in a JSON file on the defaults
func LoadWeightsFile(path string) (Weights, error) {
	w := DefaultWeights()
	raw, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("failed to read weights file: %w", err)
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return DefaultWeights(), fmt.Errorf("failed to parse weights file %s: %w", path, err)
	}
	return w, nil
}
