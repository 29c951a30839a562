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

// Registry keys and display names.
const (
	KeyRoleTaskConstraints = "role_task_constraints"
	KeyFewShotContrastive  = "few_shot_contrastive"
	KeyStructuredJSONGuard = "structured_json_guard"
	KeyRAGLite             = "rag_lite"
	KeySelfConsistency     = "self_consistency"
	KeyChainOfVerification = "chain_of_verification"
	KeyCritiqueAndRevise   = "critique_and_revise"

	NameRoleTaskConstraints = "Role+Task+Constraints"
	NameFewShotContrastive  = "Few-shot Contrastive"
	NameStructuredJSONGuard = "Structured JSON Guard"
	NameRAGLite             = "RAG-lite"
	NameSelfConsistency     = "Self-Consistency"
	NameChainOfVerification = "Chain-of-Verification"
	NameCritiqueAndRevise   = "Critique-and-Revise"
)

// singleCall is the shared body of every one-request technique: render one
// user message, call once, validate.
type singleCall struct {
	client    providers.LLMClient
	opts      Options
	promptKey string
}

func newSingleCall(client providers.LLMClient, opts Options, promptKey string) singleCall {
	return singleCall{client: client, opts: opts.withDefaults(), promptKey: promptKey}
}

func (s *singleCall) DefaultTemperature() float64 {
	return DefaultTemperature
}

func (s *singleCall) BuildMessages(ev report.Evidence) ([]providers.Message, error) {
	msgs, _, err := s.render(ev)
	return msgs, err
}

func (s *singleCall) Postprocess(raw string) validate.Validation {
	return validate.ExtractAndValidate(raw)
}

func (s *singleCall) render(ev report.Evidence) ([]providers.Message, prompts.Prompt, error) {
	text, p, err := s.opts.Catalog.Render(s.promptKey, prompts.NewData(ev))
	if err != nil {
		return nil, p, err
	}
	return []providers.Message{{Role: providers.RoleUser, Content: text}}, p, nil
}

// run executes the single-call template on behalf of t.
// A panic in the client or in Postprocess is recorded as a failure.
func (s *singleCall) run(ctx context.Context, t Technique, ev report.Evidence, temperature float64) (res Result) {
	res = newResult(t, ev)
	rec := llmcall.NewRecorder()
	logger := s.opts.Logger.With("technique", t.Name(), "key", t.Key())
	defer recoverInto(&res, rec, logger)

	msgs, p, err := s.render(ev)
	if err != nil {
		res.fail(fmt.Errorf("build messages: %w", err))
		logger.Warn("technique failed", "error", err)
		return res
	}

	chat, err := generate(ctx, s.client, s.opts, rec, msgs, temperature, llmcall.RecordOptions{
		Technique:  t.Key(),
		PromptKey:  p.Key,
		PromptHash: p.Hash,
	})
	res.attach(rec)
	if err != nil {
		res.fail(err)
		logger.Warn("technique failed", "provider", s.client.Name(), "error", err)
		return res
	}

	res.Raw = chat.Content
	res.LatencyS = chat.LatencySeconds()
	res.apply(t.Postprocess(chat.Content))
	logger.Debug("technique finished", "valid", res.Valid, "outcome", res.Outcome, "latency_s", res.LatencyS)
	return res
}

// RoleTaskConstraints states the analyst role, the reporting thresholds and
// the literal report schema.
type RoleTaskConstraints struct{ singleCall }

// NewRoleTaskConstraints creates the Role+Task+Constraints technique.
func NewRoleTaskConstraints(client providers.LLMClient, opts Options) *RoleTaskConstraints {
	return &RoleTaskConstraints{newSingleCall(client, opts, prompts.RoleTaskConstraintsKey)}
}

func (t *RoleTaskConstraints) Key() string  { return KeyRoleTaskConstraints }
func (t *RoleTaskConstraints) Name() string { return NameRoleTaskConstraints }

func (t *RoleTaskConstraints) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return t.run(ctx, t, ev, temperature)
}

// FewShotContrastive shows one good and one corrected bad example.
type FewShotContrastive struct{ singleCall }

// NewFewShotContrastive creates the Few-shot Contrastive technique.
func NewFewShotContrastive(client providers.LLMClient, opts Options) *FewShotContrastive {
	return &FewShotContrastive{newSingleCall(client, opts, prompts.FewShotContrastiveKey)}
}

func (t *FewShotContrastive) Key() string  { return KeyFewShotContrastive }
func (t *FewShotContrastive) Name() string { return NameFewShotContrastive }

func (t *FewShotContrastive) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return t.run(ctx, t, ev, temperature)
}

// StructuredJSONGuard stresses output format and offers a copyable fallback
// object carrying the evidence OOD rate.
type StructuredJSONGuard struct{ singleCall }

// NewStructuredJSONGuard creates the Structured JSON Guard technique.
func NewStructuredJSONGuard(client providers.LLMClient, opts Options) *StructuredJSONGuard {
	return &StructuredJSONGuard{newSingleCall(client, opts, prompts.StructuredJSONGuardKey)}
}

func (t *StructuredJSONGuard) Key() string  { return KeyStructuredJSONGuard }
func (t *StructuredJSONGuard) Name() string { return NameStructuredJSONGuard }

func (t *StructuredJSONGuard) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return t.run(ctx, t, ev, temperature)
}

// RAGLite prefixes the request with static pipeline context.
type RAGLite struct{ singleCall }

// NewRAGLite creates the RAG-lite technique.
func NewRAGLite(client providers.LLMClient, opts Options) *RAGLite {
	return &RAGLite{newSingleCall(client, opts, prompts.RAGLiteKey)}
}

func (t *RAGLite) Key() string  { return KeyRAGLite }
func (t *RAGLite) Name() string { return NameRAGLite }

func (t *RAGLite) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return t.run(ctx, t, ev, temperature)
}

// ChainOfVerification asks for an assessment, a verification checklist and
// the final JSON in one message.
type ChainOfVerification struct{ singleCall }

// NewChainOfVerification creates the Chain-of-Verification technique.
func NewChainOfVerification(client providers.LLMClient, opts Options) *ChainOfVerification {
	return &ChainOfVerification{newSingleCall(client, opts, prompts.ChainOfVerificationKey)}
}

func (t *ChainOfVerification) Key() string  { return KeyChainOfVerification }
func (t *ChainOfVerification) Name() string { return NameChainOfVerification }

func (t *ChainOfVerification) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return t.run(ctx, t, ev, temperature)
}
