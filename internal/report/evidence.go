package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEvidence is returned by Evidence.Validate.
var ErrInvalidEvidence = errors.New("invalid evidence")

// TaxonScore is one classifier hit: a taxon name and its confidence.
//
// JSON accepts both the pair form ["SARS-CoV-2", 0.65] and the object form
// {"taxon": "SARS-CoV-2", "confidence": 0.65}. It always encodes as an object.
type TaxonScore struct {
	Taxon      string  `json:"taxon" yaml:"taxon"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

func (t *TaxonScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("taxon pair must have 2 elements, got %d", len(pair))
		}
		if err := json.Unmarshal(pair[0], &t.Taxon); err != nil {
			return fmt.Errorf("taxon name: %w", err)
		}
		if err := json.Unmarshal(pair[1], &t.Confidence); err != nil {
			return fmt.Errorf("taxon confidence: %w", err)
		}
		return nil
	}
	type plain TaxonScore
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TaxonScore(p)
	return nil
}

// Evidence is the numeric input to a single analysis.
// Techniques treat it as read-only.
type Evidence struct {
	KnownTaxa  []TaxonScore `json:"known_taxa" yaml:"known_taxa"`
	OODRate    float64      `json:"ood_rate" yaml:"ood_rate"`
	SampleMeta string       `json:"sample_meta" yaml:"sample_meta"`
}

// MarshalJSON encodes a missing taxa list as [].
func (e Evidence) MarshalJSON() ([]byte, error) {
	type plain Evidence
	p := plain(e)
	if p.KnownTaxa == nil {
		p.KnownTaxa = []TaxonScore{}
	}
	return json.Marshal(p)
}

// Validate checks value ranges. It is used on caller input only.
func (e Evidence) Validate() error {
	var problems []string
	for i, t := range e.KnownTaxa {
		if strings.TrimSpace(t.Taxon) == "" {
			problems = append(problems, fmt.Sprintf("known_taxa[%d]: empty taxon", i))
		}
		if t.Confidence < 0 || t.Confidence > 1 {
			problems = append(problems, fmt.Sprintf("known_taxa[%d]: confidence %g outside [0,1]", i, t.Confidence))
		}
	}
	if e.OODRate < 0 || e.OODRate > 1 {
		problems = append(problems, fmt.Sprintf("ood_rate %g outside [0,1]", e.OODRate))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvidence, strings.Join(problems, "; "))
	}
	return nil
}

// TaxaList renders the taxa as "Name (0.65), Other (0.20)".
func (e Evidence) TaxaList() string {
	parts := make([]string, len(e.KnownTaxa))
	for i, t := range e.KnownTaxa {
		parts[i] = fmt.Sprintf("%s (%.2f)", t.Taxon, t.Confidence)
	}
	return strings.Join(parts, ", ")
}

// MaxConfidence returns the highest taxon confidence, or 0 with no taxa.
func (e Evidence) MaxConfidence() float64 {
	var best float64
	for _, t := range e.KnownTaxa {
		best = max(best, t.Confidence)
	}
	return best
}

// Clone returns a copy that shares no slices with e.
func (e Evidence) Clone() Evidence {
	e.KnownTaxa = append([]TaxonScore(nil), e.KnownTaxa...)
	return e
}
