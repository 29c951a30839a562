package technique

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/pathoprompt/internal/llmcall"
	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/validate"
)

const (
	// ConsensusFailedReason is the caveat on the fallback when no sample is valid.
	ConsensusFailedReason = "Consensus failed"

	// NoValidSamples is the error recorded alongside that fallback.
	NoValidSamples = "No valid samples for consensus"

	multipleSamplingCaveat = "Multiple sampling analysis"
)

// SelfConsistency runs a base technique several times and keeps the taxa a
// strict majority of valid samples agree on.
type SelfConsistency struct {
	base     Technique
	samples  int
	parallel int
	logger   *slog.Logger
}

// NewSelfConsistency wraps base. A nil base is not allowed; NewRegistry
// passes Role+Task+Constraints.
func NewSelfConsistency(base Technique, opts Options) *SelfConsistency {
	opts = opts.withDefaults()
	return &SelfConsistency{
		base:     base,
		samples:  opts.ConsensusSamples,
		parallel: opts.ConsensusParallel,
		logger:   opts.Logger,
	}
}

func (t *SelfConsistency) Key() string                 { return KeySelfConsistency }
func (t *SelfConsistency) Name() string                { return NameSelfConsistency }
func (t *SelfConsistency) DefaultTemperature() float64 { return SamplingTemperature }

// Base returns the wrapped technique.
func (t *SelfConsistency) Base() Technique { return t.base }

// Samples returns the number of samples drawn per run.
func (t *SelfConsistency) Samples() int { return t.samples }

func (t *SelfConsistency) BuildMessages(ev report.Evidence) ([]providers.Message, error) {
	return t.base.BuildMessages(ev)
}

func (t *SelfConsistency) Postprocess(raw string) validate.Validation {
	return t.base.Postprocess(raw)
}

// Run draws the samples concurrently and aggregates the valid ones.
func (t *SelfConsistency) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	res := newResult(t, ev)
	logger := t.logger.With("technique", t.Name(), "key", t.Key())

	slots := t.sample(ctx, ev, temperature, logger)

	rec := llmcall.NewRecorder()
	var valid []Result
	for _, s := range slots {
		if s == nil {
			continue
		}
		rec.RecordCall(s.Calls...)
		if s.Valid && s.Report != nil {
			valid = append(valid, *s)
		}
	}
	res.attach(rec)

	if len(valid) == 0 {
		res.Raw = fmt.Sprintf("All %d samples failed", t.samples)
		res.Report = report.Inconclusive(ConsensusFailedReason)
		res.Valid = true
		res.Outcome = OutcomeDegraded
		res.Errors = []string{NoValidSamples}
		logger.Warn("no valid samples for consensus", "samples", t.samples)
		return res
	}

	reports := make([]*report.Report, len(valid))
	for i, v := range valid {
		reports[i] = v.Report
		res.LatencyS += v.LatencyS
	}
	res.Report = Aggregate(reports)
	res.Raw = fmt.Sprintf("Aggregated from %d valid samples", len(valid))
	res.Valid = true
	res.Outcome = OutcomeOK
	logger.Debug("consensus reached", "valid_samples", len(valid), "pathogens", len(res.Report.KnownPathogens))
	return res
}

// sample runs the base technique into one slot per sample. A sample that
// panics leaves its slot nil.
func (t *SelfConsistency) sample(ctx context.Context, ev report.Evidence, temperature float64, logger *slog.Logger) []*Result {
	slots := make([]*Result, t.samples)

	var g errgroup.Group
	g.SetLimit(max(1, min(t.samples, t.parallel)))
	for i := range slots {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("sample panicked", "sample", i, "panic", r)
				}
			}()
			r := t.base.Run(ctx, ev, temperature)
			slots[i] = &r
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

// Aggregate folds sample reports into a consensus report. A taxon is kept
// when it appears in more than half the reports, at the median of its
// confidences. Taxa keep their first-appearance order.
func Aggregate(reports []*report.Report) *report.Report {
	votes := make(map[string][]float64)
	var order []string
	oods := make([]float64, 0, len(reports))
	for _, r := range reports {
		oods = append(oods, r.OODRate)
		for _, p := range r.KnownPathogens {
			if _, seen := votes[p.Taxon]; !seen {
				order = append(order, p.Taxon)
			}
			votes[p.Taxon] = append(votes[p.Taxon], p.Confidence)
		}
	}

	pathogens := []report.Pathogen{}
	for _, taxon := range order {
		confs := votes[taxon]
		if 2*len(confs) > len(reports) {
			pathogens = append(pathogens, report.Pathogen{Taxon: taxon, Confidence: median(confs)})
		}
	}

	label := fmt.Sprintf("Consensus from %d samples", len(reports))
	return &report.Report{
		Summary:        label,
		KnownPathogens: pathogens,
		OODRate:        median(oods),
		Caveats:        []string{label, multipleSamplingCaveat},
	}
}

// median returns the middle value, or the mean of the two middle values for
// an even count. It returns 0 for no values.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
