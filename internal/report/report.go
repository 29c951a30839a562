// Package report holds the value types that flow through a technique run:
// the numeric Evidence a run starts from and the structured Report it produces.
package report

import "encoding/json"

const (
	// InconclusiveSummary is the summary carried by every fallback report.
	InconclusiveSummary = "Inconclusive - insufficient evidence"

	// FollowUpCaveat is appended after the reason on every fallback report.
	FollowUpCaveat = "Additional validation recommended"

	// DefaultInconclusiveReason is used when no reason is given.
	DefaultInconclusiveReason = "Analysis failed"
)

// Pathogen is a single detected taxon with its confidence.
type Pathogen struct {
	Taxon      string  `json:"taxon" yaml:"taxon"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Report is the structured surveillance report a technique produces.
type Report struct {
	Summary        string     `json:"summary" yaml:"summary"`
	KnownPathogens []Pathogen `json:"known_pathogens" yaml:"known_pathogens"`
	OODRate        float64    `json:"ood_rate" yaml:"ood_rate"`
	Caveats        []string   `json:"caveats" yaml:"caveats"`
}

// MarshalJSON encodes empty pathogen and caveat lists as [] rather than null.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	p := plain(r)
	if p.KnownPathogens == nil {
		p.KnownPathogens = []Pathogen{}
	}
	if p.Caveats == nil {
		p.Caveats = []string{}
	}
	return json.Marshal(p)
}

// Inconclusive builds the deterministic fallback report.
func Inconclusive(reason string) *Report {
	if reason == "" {
		reason = DefaultInconclusiveReason
	}
	return &Report{
		Summary:        InconclusiveSummary,
		KnownPathogens: []Pathogen{},
		OODRate:        0.0,
		Caveats:        []string{reason, FollowUpCaveat},
	}
}

// IsInconclusive reports whether r is a fallback report.
func (r *Report) IsInconclusive() bool {
	return r != nil && r.Summary == InconclusiveSummary
}

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := &Report{
		Summary: r.Summary,
		OODRate: r.OODRate,
	}
	out.KnownPathogens = append([]Pathogen{}, r.KnownPathogens...)
	out.Caveats = append([]string{}, r.Caveats...)
	return out
}
