package report

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/gautam1sharma/sopcompliance/core"
)

// Band thresholds. A score must exceed a threshold to reach its band.
const (
	HighThreshold   = 0.6
	MediumThreshold = 0.4
	LowThreshold    = 0.25
)

// Aggregator builds compliance reports from score results.
type Aggregator struct{}

// NewAggregator creates an aggregator with the default band thresholds.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Band maps a score to its confidence band.
func (a *Aggregator) Band(score float64) core.Band {
	switch {
	case score > HighThreshold:
		return core.BandHigh
	case score > MediumThreshold:
		return core.BandMedium
	case score > LowThreshold:
		return core.BandLow
	default:
		return core.BandNone
	}
}

// Result builds the score result of one control. The rationale is the
// evidence joined by newlines.
func (a *Aggregator) Result(control *core.Control, score float64, evidence []string) core.ScoreResult {
	band := a.Band(score)
	if len(evidence) == 0 {
		evidence = nil
	}
	return core.ScoreResult{
		ControlID: control.ID,
		Name:      control.Name,
		Score:     score,
		Status:    band.Status(),
		Band:      band,
		Rationale: strings.Join(evidence, "\n"),
		Evidence:  evidence,
	}
}

// Aggregate summarizes results, given in catalog order, into a report.
// Bands and statuses are derived from the scores. The compliance score is
// the percentage of matched controls, 0 for an empty catalog.
func (a *Aggregator) Aggregate(results []core.ScoreResult) *core.ComplianceReport {
	report := &core.ComplianceReport{
		Results: make([]core.ScoreResult, len(results)),
	}
	report.Summary.TotalControls = len(results)

	for i, result := range results {
		result.Band = a.Band(result.Score)
		result.Status = result.Band.Status()
		if result.Rationale == "" && len(result.Evidence) > 0 {
			result.Rationale = strings.Join(result.Evidence, "\n")
		}
		report.Results[i] = result

		switch result.Band {
		case core.BandHigh:
			report.Summary.HighConfidence++
		case core.BandMedium:
			report.Summary.MediumConfidence++
		case core.BandLow:
			report.Summary.LowConfidence++
		default:
			report.Summary.NonCompliant++
		}
		if result.Band.Matched() {
			report.Summary.MatchedControls++
		}
	}

	if report.Summary.TotalControls > 0 {
		report.ComplianceScore = float64(report.Summary.MatchedControls) / float64(report.Summary.TotalControls) * 100
	}
	return report
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *core.ComplianceReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
