// Package prompts holds the embedded prompt templates each technique renders.
//
// Templates live under templates/ as .tmpl files and are registered in a
// Catalog under a hierarchical key (techniques.<name>). Each registered prompt
// carries the variables it references and a SHA256 of its text so call traces
// can be tied back to the exact prompt version that produced them.
package prompts

import (
	"strconv"

	"github.com/jackzampolin/pathoprompt/internal/report"
)

// Prompt is a registered template.
type Prompt struct {
	Key         string   `json:"key" yaml:"key"`
	Text        string   `json:"text" yaml:"text"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Hash        string   `json:"hash" yaml:"hash"`
}

// UnknownSample is rendered when the evidence carries no sample description.
const UnknownSample = "Unknown"

// Data is the value every technique template is executed against.
type Data struct {
	Taxa          string // "SARS-CoV-2 (0.65), Human (0.30)"
	OODRate       string // three decimals
	OODRateValue  string // shortest exact form, safe inside JSON
	SampleMeta    string
	Schema        string
	CompactSchema string
	Draft         string // critique stage only
}

// NewData prepares template data from evidence.
func NewData(ev report.Evidence) Data {
	sample := ev.SampleMeta
	if sample == "" {
		sample = UnknownSample
	}
	return Data{
		Taxa:          ev.TaxaList(),
		OODRate:       strconv.FormatFloat(ev.OODRate, 'f', 3, 64),
		OODRateValue:  strconv.FormatFloat(ev.OODRate, 'f', -1, 64),
		SampleMeta:    sample,
		Schema:        report.Schema(),
		CompactSchema: report.CompactSchema(),
	}
}

// WithDraft returns a copy of d carrying a stage one draft.
func (d Data) WithDraft(draft string) Data {
	d.Draft = draft
	return d
}
