package technique

import (
	"context"
	"fmt"

	"github.com/jackzampolin/pathoprompt/internal/llmcall"
	"github.com/jackzampolin/pathoprompt/internal/prompts"
	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/validate"
)

// Critique stages, used to prefix errors and tag call records.
const (
	StageDraft  = "draft"
	StageRevise = "revise"
)

// CritiqueAndRevise drafts an analysis, then asks for a revision of that
// draft against a reviewer checklist. Only the revision is validated.
type CritiqueAndRevise struct {
	client providers.LLMClient
	opts   Options
}

// NewCritiqueAndRevise creates the Critique-and-Revise technique.
func NewCritiqueAndRevise(client providers.LLMClient, opts Options) *CritiqueAndRevise {
	return &CritiqueAndRevise{client: client, opts: opts.withDefaults()}
}

func (t *CritiqueAndRevise) Key() string                 { return KeyCritiqueAndRevise }
func (t *CritiqueAndRevise) Name() string                { return NameCritiqueAndRevise }
func (t *CritiqueAndRevise) DefaultTemperature() float64 { return DefaultTemperature }

// BuildMessages returns the draft stage request.
func (t *CritiqueAndRevise) BuildMessages(ev report.Evidence) ([]providers.Message, error) {
	msgs, _, err := t.stageMessages(prompts.CritiqueDraftKey, prompts.NewData(ev))
	return msgs, err
}

// ReviseMessages returns the revision request embedding draft verbatim.
func (t *CritiqueAndRevise) ReviseMessages(ev report.Evidence, draft string) ([]providers.Message, error) {
	msgs, _, err := t.stageMessages(prompts.CritiqueReviseKey, prompts.NewData(ev).WithDraft(draft))
	return msgs, err
}

func (t *CritiqueAndRevise) Postprocess(raw string) validate.Validation {
	return validate.ExtractAndValidate(raw)
}

func (t *CritiqueAndRevise) stageMessages(key string, data prompts.Data) ([]providers.Message, prompts.Prompt, error) {
	text, p, err := t.opts.Catalog.Render(key, data)
	if err != nil {
		return nil, p, err
	}
	return []providers.Message{{Role: providers.RoleUser, Content: text}}, p, nil
}

// Run performs both stages at the same temperature. A failure in either
// stage leaves the result invalid with no report.
func (t *CritiqueAndRevise) Run(ctx context.Context, ev report.Evidence, temperature float64) (res Result) {
	res = newResult(t, ev)
	rec := llmcall.NewRecorder()
	logger := t.opts.Logger.With("technique", t.Name(), "key", t.Key())
	defer recoverInto(&res, rec, logger)

	data := prompts.NewData(ev)
	draft, err := t.stage(ctx, rec, StageDraft, prompts.CritiqueDraftKey, data, temperature)
	if err != nil {
		res.attach(rec)
		res.fail(fmt.Errorf("%s stage: %w", StageDraft, err))
		logger.Warn("technique failed", "stage", StageDraft, "error", err)
		return res
	}

	final, err := t.stage(ctx, rec, StageRevise, prompts.CritiqueReviseKey, data.WithDraft(draft.Content), temperature)
	res.attach(rec)
	if err != nil {
		res.fail(fmt.Errorf("%s stage: %w", StageRevise, err))
		logger.Warn("technique failed", "stage", StageRevise, "error", err)
		return res
	}

	res.Raw = final.Content
	res.LatencyS = draft.LatencySeconds() + final.LatencySeconds()
	res.apply(t.Postprocess(final.Content))
	return res
}

func (t *CritiqueAndRevise) stage(
	ctx context.Context,
	rec *llmcall.Recorder,
	stage, key string,
	data prompts.Data,
	temperature float64,
) (*providers.ChatResult, error) {
	msgs, p, err := t.stageMessages(key, data)
	if err != nil {
		return nil, fmt.Errorf("build messages: %w", err)
	}
	return generate(ctx, t.client, t.opts, rec, msgs, temperature, llmcall.RecordOptions{
		Technique:  t.Key(),
		Stage:      stage,
		PromptKey:  p.Key,
		PromptHash: p.Hash,
	})
}
