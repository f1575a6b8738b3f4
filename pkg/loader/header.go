// pkg/loader/header.go
package loader

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

// LocatorOptions tunes header row detection
type LocatorOptions struct {
	// PreviewRows is how many leading rows are scored
	PreviewRows int
	// ReprobeLimit is how many rows past a degenerate header are tried
	ReprobeLimit int
	// MinMargin is how much the best row must beat row 0 by
	MinMargin float64
	// CandidateScore marks a row as a plausible header in the candidate list
	CandidateScore float64
}

// DefaultLocatorOptions returns the detection defaults
func DefaultLocatorOptions() LocatorOptions {
	return LocatorOptions{
		PreviewRows:    15,
		ReprobeLimit:   2,
		MinMargin:      5.0,
		CandidateScore: 8.0,
	}
}

// FrameFunc builds a dataset using the given row as header
type FrameFunc func(headerRow int) (*model.Dataset, error)

// HeaderResult is the outcome of header detection
type HeaderResult struct {
	DetectedRow int
	HeaderRow   int
	BestScore   float64
	Row0Score   float64
	Candidates  []model.HeaderCandidate
	Dataset     *model.Dataset
	Anomalies   []string
}

// HeaderLocator finds the header row of a spreadsheet whose first rows
// may hold titles, notes or blank banners
type HeaderLocator struct {
	scorer *profile.Scorer
	opts   LocatorOptions
	logger *zap.Logger
}

// NewHeaderLocator creates a locator; a nil logger disables logging
func NewHeaderLocator(scorer *profile.Scorer, opts LocatorOptions, logger *zap.Logger) *HeaderLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultLocatorOptions().PreviewRows
	}
	if opts.ReprobeLimit < 0 {
		opts.ReprobeLimit = 0
	}
	return &HeaderLocator{scorer: scorer, opts: opts, logger: logger}
}

// Score rates every preview row and returns the best row and row 0's score
func (h *HeaderLocator) Score(preview [][]string) (best int, bestScore, row0Score float64, candidates []model.HeaderCandidate) {
	if len(preview) > h.opts.PreviewRows {
		preview = preview[:h.opts.PreviewRows]
	}

	for i, row := range preview {
		score := h.scorer.ScoreRow(row, i)
		if i == 0 {
			row0Score = score
		}
		if score > bestScore {
			best, bestScore = i, score
		}
		candidates = append(candidates, model.HeaderCandidate{
			Row:         i,
			Score:       score,
			Values:      nonBlank(row),
			IsCandidate: score > h.opts.CandidateScore,
		})
	}
	return best, bestScore, row0Score, candidates
}

func nonBlank(row []string) []string {
	out := make([]string, 0, len(row))
	for _, v := range row {
		if !profile.IsBlankMarker(v) {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// Locate picks the header row and builds the dataset through frame. It only
// fails when even row 0 cannot be framed.
func (h *HeaderLocator) Locate(preview [][]string, frame FrameFunc) (*HeaderResult, error) {
	best, bestScore, row0Score, candidates := h.Score(preview)

	res := &HeaderResult{
		BestScore:  bestScore,
		Row0Score:  row0Score,
		Candidates: candidates,
	}

	selected := 0
	if bestScore > row0Score+h.opts.MinMargin {
		selected = best
	}
	res.DetectedRow = selected

	h.logger.Debug("Header row scored",
		zap.Int("best_row", best),
		zap.Float64("best_score", bestScore),
		zap.Float64("row0_score", row0Score),
		zap.Int("selected", selected))

	ds, err := frame(selected)
	if err != nil && selected != 0 {
		h.logger.Warn("Failed to load with detected header, falling back to row 0",
			zap.Int("header_row", selected),
			zap.Error(err))
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("Error al cargar con encabezado en fila %d; se usó la fila 0", selected))
		selected = 0
		ds, err = frame(0)
	}
	if err != nil {
		return nil, err
	}

	if profile.IsDegenerateHeader(ds.Columns()) {
		h.logger.Warn("Header looks degenerate, probing following rows",
			zap.Int("header_row", selected),
			zap.Strings("columns", ds.Columns()))

		found := false
		for k := 1; k <= h.opts.ReprobeLimit; k++ {
			probe := selected + k
			if probe >= len(preview) {
				break
			}
			alt, err := frame(probe)
			if err != nil {
				continue
			}
			if !profile.IsDegenerateHeader(alt.Columns()) {
				res.Anomalies = append(res.Anomalies, fmt.Sprintf(
					"Encabezado degenerado en fila %d; se usó la fila %d", selected, probe))
				selected, ds, found = probe, alt, true
				break
			}
		}
		if !found {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf(
				"Encabezado degenerado en fila %d; no se encontró una alternativa", selected))
		}
	}

	res.HeaderRow = selected
	res.Dataset = ds
	return res, nil
}
