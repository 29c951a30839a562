// Package technique implements the prompting strategies under comparison.
//
// Every strategy turns one Evidence value into a Result: it builds the
// messages, calls the generation capsule, and runs the reply through the
// response validator. The set is closed; NewRegistry returns all of them in
// a fixed order.
package technique

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/pathoprompt/internal/llmcall"
	"github.com/jackzampolin/pathoprompt/internal/prompts"
	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/validate"
)

// ErrUnknownTechnique is returned by Lookup for keys not in the registry.
var ErrUnknownTechnique = errors.New("unknown technique")

// Defaults applied by Options.
const (
	DefaultMaxTokens        = 1000
	DefaultCallTimeout      = 120 * time.Second
	DefaultConsensusSamples = 3

	// DefaultTemperature is used by every technique except Self-Consistency.
	DefaultTemperature = 0.3

	// SamplingTemperature is Self-Consistency's default.
	SamplingTemperature = 0.7
)

// Technique is one prompting strategy.
type Technique interface {
	// Key is the registry key, e.g. "role_task_constraints".
	Key() string

	// Name is the display name, e.g. "Role+Task+Constraints".
	Name() string

	DefaultTemperature() float64

	// BuildMessages renders the request for ev.
	BuildMessages(ev report.Evidence) ([]providers.Message, error)

	// Postprocess runs generated text through the response validator.
	Postprocess(raw string) validate.Validation

	// Run performs the full strategy. Failures are reported inside the
	// Result, never as a panic or error.
	Run(ctx context.Context, ev report.Evidence, temperature float64) Result
}

// Outcome classifies a Result beyond the valid flag.
type Outcome string

const (
	// OutcomeOK means the report came from generated output and passed the schema.
	OutcomeOK Outcome = "ok"

	// OutcomeDegraded means a fallback report was substituted. Valid stays true.
	OutcomeDegraded Outcome = "degraded"

	// OutcomeFailed means generation failed or the output violated the schema.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of one technique run.
type Result struct {
	Technique string          `json:"technique"`
	Key       string          `json:"key"`
	Evidence  report.Evidence `json:"evidence"`
	Raw       string          `json:"raw"`

	// Report is nil only when no report was attempted.
	Report     *report.Report  `json:"report"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"`

	Valid    bool     `json:"valid"`
	Outcome  Outcome  `json:"outcome"`
	Errors   []string `json:"errors"`
	LatencyS float64  `json:"latency_s"`

	// Mock is set when any call was served by a mock client.
	Mock  bool           `json:"mock"`
	Calls []llmcall.Call `json:"calls,omitempty"`
}

func newResult(t Technique, ev report.Evidence) Result {
	return Result{
		Technique: t.Name(),
		Key:       t.Key(),
		Evidence:  ev.Clone(),
		Errors:    []string{},
		Outcome:   OutcomeFailed,
	}
}

// apply copies a validation outcome into r.
func (r *Result) apply(v validate.Validation) {
	r.Report = v.Report
	r.ParsedJSON = v.Document
	r.Valid = v.Valid
	r.Errors = append(r.Errors, v.Errors...)
	switch {
	case !v.Valid:
		r.Outcome = OutcomeFailed
	case v.Degraded:
		r.Outcome = OutcomeDegraded
	default:
		r.Outcome = OutcomeOK
	}
}

// fail records err and marks r invalid.
func (r *Result) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
	r.Valid = false
	r.Outcome = OutcomeFailed
}

// attach stores the recorded calls on r.
func (r *Result) attach(rec *llmcall.Recorder) {
	r.Calls = rec.Calls()
	for _, c := range r.Calls {
		if c.Mock {
			r.Mock = true
			break
		}
	}
}

// recoverInto turns a panic into a failed res, keeping the calls recorded
// and the latency measured so far. It must be deferred directly.
func recoverInto(res *Result, rec *llmcall.Recorder, logger *slog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	res.attach(rec)
	res.fail(fmt.Errorf("panic: %v", r))
	logger.Error("technique panicked", "panic", r)
}

// Options configure every technique built by NewRegistry.
type Options struct {
	// Model overrides the client's default model when set.
	Model string

	MaxTokens   int
	CallTimeout time.Duration

	// ConsensusSamples is the number of Self-Consistency samples.
	ConsensusSamples int

	// ConsensusParallel bounds concurrent samples. Zero means all at once.
	ConsensusParallel int

	Catalog *prompts.Catalog
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.ConsensusSamples <= 0 {
		o.ConsensusSamples = DefaultConsensusSamples
	}
	if o.ConsensusParallel <= 0 {
		o.ConsensusParallel = o.ConsensusSamples
	}
	if o.Catalog == nil {
		o.Catalog = prompts.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// generate issues one bounded capsule call and records it.
func generate(
	ctx context.Context,
	client providers.LLMClient,
	opts Options,
	rec *llmcall.Recorder,
	messages []providers.Message,
	temperature float64,
	ro llmcall.RecordOptions,
) (*providers.ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()

	ro.Provider = client.Name()
	ro.Temperature = &temperature

	result, err := client.Chat(ctx, &providers.ChatRequest{
		Messages:    messages,
		Model:       opts.Model,
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
	})
	rec.Record(result, err, ro)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("empty response from " + client.Name())
	}
	return result, nil
}
