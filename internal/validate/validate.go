package validate

import (
	"encoding/json"

	"github.com/jackzampolin/pathoprompt/internal/report"
)

// FallbackReason is the caveat placed on the report substituted when
// extraction fails.
const FallbackReason = "JSON parsing failed"

// Validation is the outcome of running raw text through the validator.
type Validation struct {
	// Report is never nil. On extraction failure it is the fallback report;
	// for a schema-invalid document it is a best-effort decode.
	Report *report.Report

	// Document is the extracted JSON object exactly as it appeared in the text.
	Document json.RawMessage

	Valid bool

	// Degraded is set when Report is the fallback rather than generated output.
	Degraded bool

	Errors []string
}

// ExtractAndValidate extracts a JSON object from raw and validates it.
//
// When no object can be found the fallback report is returned marked valid
// and degraded, with ExtractionFailure recorded. Schema-invalid objects are
// returned as they are, marked invalid, with every violation listed.
func ExtractAndValidate(raw string) Validation {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return Validation{
			Report:   report.Inconclusive(FallbackReason),
			Valid:    true,
			Degraded: true,
			Errors:   []string{ExtractionFailure},
		}
	}

	valid, errs := ValidateReportSchema(doc)
	return Validation{
		Report:   decodeLenient(doc),
		Document: doc,
		Valid:    valid,
		Errors:   errs,
	}
}

// decodeLenient fills a Report from doc field by field, leaving any field
// with the wrong shape at its zero value.
func decodeLenient(doc json.RawMessage) *report.Report {
	var r report.Report
	if err := json.Unmarshal(doc, &r); err == nil {
		return &r
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return &r
	}
	r = report.Report{}
	_ = json.Unmarshal(fields["summary"], &r.Summary)
	_ = json.Unmarshal(fields["ood_rate"], &r.OODRate)
	_ = json.Unmarshal(fields["caveats"], &r.Caveats)

	var entries []json.RawMessage
	if err := json.Unmarshal(fields["known_pathogens"], &entries); err == nil {
		for _, e := range entries {
			var p report.Pathogen
			if err := json.Unmarshal(e, &p); err == nil {
				r.KnownPathogens = append(r.KnownPathogens, p)
			}
		}
	}
	return &r
}
