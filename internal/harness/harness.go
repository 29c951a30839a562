// Package harness runs every technique against the same evidence, scores
// the results and persists one JSON artifact per comparison run.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/technique"
)

// Record is one technique's entry in a run: a result, or the error that
// prevented one.
type Record struct {
	Name   string            `json:"name"`
	Result *technique.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Summary scores a run.
type Summary struct {
	ValidTechniques int     `json:"valid_techniques"`
	TotalTechniques int     `json:"total_techniques"`
	SuccessRate     float64 `json:"success_rate"`
}

// Run is a complete comparison.
type Run struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Evidence  report.Evidence `json:"evidence"`
	Runs      []Record        `json:"runs"`
	Summary   Summary         `json:"summary"`

	// ArtifactPath is where the run was written, empty if it was not.
	ArtifactPath string `json:"-"`
}

// Harness compares a fixed list of techniques.
type Harness struct {
	Techniques []technique.Technique

	// OutDir receives the artifact. Empty disables persistence.
	OutDir string

	// Concurrency bounds techniques in flight. Zero runs all at once.
	Concurrency int

	Logger *slog.Logger

	// Now is the clock, for tests.
	Now func() time.Time
}

// New creates a harness over techniques writing to outDir.
func New(techniques []technique.Technique, outDir string, logger *slog.Logger) *Harness {
	return &Harness{
		Techniques: techniques,
		OutDir:     outDir,
		Logger:     logger,
	}
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Harness) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// RunAll runs every technique at its default temperature. The returned Run
// is always complete; the error reports only a failure to persist it.
func (h *Harness) RunAll(ctx context.Context, ev report.Evidence) (*Run, error) {
	logger := h.logger()
	run := &Run{
		RunID:     uuid.New().String(),
		StartedAt: h.now().UTC(),
		Evidence:  ev.Clone(),
		Runs:      make([]Record, len(h.Techniques)),
	}

	limit := h.Concurrency
	if limit <= 0 {
		limit = len(h.Techniques)
	}

	var g errgroup.Group
	g.SetLimit(max(1, limit))
	for i, t := range h.Techniques {
		g.Go(func() error {
			run.Runs[i] = h.runOne(ctx, t, ev)
			return nil
		})
	}
	_ = g.Wait()

	run.Summary = Summarize(run.Runs, len(h.Techniques))
	logger.Info("comparison finished",
		"run_id", run.RunID,
		"valid", run.Summary.ValidTechniques,
		"total", run.Summary.TotalTechniques)

	if h.OutDir == "" {
		return run, nil
	}
	path, err := WriteArtifact(h.OutDir, run, run.StartedAt)
	if err != nil {
		logger.Error("failed to write comparison artifact", "dir", h.OutDir, "error", err)
		return run, err
	}
	run.ArtifactPath = path
	logger.Info("comparison saved", "path", path)
	return run, nil
}

// runOne isolates a single technique behind a recover boundary.
func (h *Harness) runOne(ctx context.Context, t technique.Technique, ev report.Evidence) (rec Record) {
	rec.Name = t.Key()
	defer func() {
		if r := recover(); r != nil {
			rec.Result = nil
			rec.Error = fmt.Sprint(r)
			h.logger().Error("technique panicked", "key", t.Key(), "panic", r)
		}
	}()

	start := time.Now()
	res := t.Run(ctx, ev.Clone(), t.DefaultTemperature())
	rec.Result = &res
	h.logger().Info("technique finished",
		"key", t.Key(),
		"valid", res.Valid,
		"outcome", res.Outcome,
		"latency_s", res.LatencyS,
		"elapsed", time.Since(start))
	return rec
}

// Summarize counts valid results over total techniques.
func Summarize(records []Record, total int) Summary {
	s := Summary{TotalTechniques: total}
	for _, r := range records {
		if r.Result != nil && r.Result.Valid {
			s.ValidTechniques++
		}
	}
	if total > 0 {
		s.SuccessRate = float64(s.ValidTechniques) / float64(total)
	}
	return s
}
