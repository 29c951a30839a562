package technique

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/validate"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, which starts its stats worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func sarsEvidence() report.Evidence {
	return report.Evidence{
		KnownTaxa: []report.TaxonScore{
			{Taxon: "SARS-CoV-2", Confidence: 0.65},
			{Taxon: "Human", Confidence: 0.30},
		},
		OODRate:    0.04,
		SampleMeta: "wastewater",
	}
}

func fastMock() *providers.MockClient {
	c := providers.NewMockClient()
	c.Latency = time.Millisecond
	return c
}

var approx = cmpopts.EquateApprox(0, 1e-9)

const validReport = `{"summary": "ok", "known_pathogens": [{"taxon": "X", "confidence": 0.6}], "ood_rate": 0.1, "caveats": ["c"]}`

func TestNewRegistry(t *testing.T) {
	techniques := NewRegistry(fastMock(), Options{})

	wantKeys := []string{
		KeyRoleTaskConstraints,
		KeyFewShotContrastive,
		KeyStructuredJSONGuard,
		KeyRAGLite,
		KeySelfConsistency,
		KeyChainOfVerification,
		KeyCritiqueAndRevise,
	}
	if diff := cmp.Diff(wantKeys, Keys(techniques)); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	for _, tech := range techniques {
		want := DefaultTemperature
		if tech.Key() == KeySelfConsistency {
			want = SamplingTemperature
		}
		if got := tech.DefaultTemperature(); got != want {
			t.Errorf("%s DefaultTemperature() = %v, want %v", tech.Key(), got, want)
		}
		if tech.Name() == "" {
			t.Errorf("%s has no name", tech.Key())
		}
	}

	sc, err := Lookup(techniques, KeySelfConsistency)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if base := sc.(*SelfConsistency).Base(); base.Key() != KeyRoleTaskConstraints {
		t.Errorf("self-consistency base = %s", base.Key())
	}

	if _, err := Lookup(techniques, "nope"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Lookup() error = %v, want unknown technique", err)
	}
}

func TestBuildMessages(t *testing.T) {
	ev := sarsEvidence()
	for _, tech := range NewRegistry(fastMock(), Options{}) {
		t.Run(tech.Key(), func(t *testing.T) {
			msgs, err := tech.BuildMessages(ev)
			if err != nil {
				t.Fatalf("BuildMessages() error = %v", err)
			}
			if len(msgs) != 1 || msgs[0].Role != providers.RoleUser {
				t.Fatalf("BuildMessages() = %+v, want one user message", msgs)
			}
			if !strings.Contains(msgs[0].Content, "SARS-CoV-2 (0.65)") {
				t.Errorf("message does not carry the taxa:\n%s", msgs[0].Content)
			}
			if !strings.Contains(msgs[0].Content, "0.040") {
				t.Errorf("message does not carry the OOD rate:\n%s", msgs[0].Content)
			}
		})
	}
}

func TestRoleTaskConstraints_SARSCoV2(t *testing.T) {
	client := fastMock()
	tech := NewRoleTaskConstraints(client, Options{})

	res := tech.Run(context.Background(), sarsEvidence(), tech.DefaultTemperature())

	if !res.Valid || res.Outcome != OutcomeOK {
		t.Fatalf("Valid = %v, Outcome = %s, Errors = %v", res.Valid, res.Outcome, res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if res.Report == nil || len(res.Report.KnownPathogens) == 0 {
		t.Fatalf("Report = %+v, want pathogens", res.Report)
	}
	if got := res.Report.KnownPathogens[0].Taxon; got != "SARS-CoV-2" {
		t.Errorf("first taxon = %q, want SARS-CoV-2", got)
	}
	if res.Technique != NameRoleTaskConstraints || res.Key != KeyRoleTaskConstraints {
		t.Errorf("Technique = %q, Key = %q", res.Technique, res.Key)
	}
	if res.Raw != providers.MockSARSCoV2Response {
		t.Errorf("Raw = %q", res.Raw)
	}
	if len(res.ParsedJSON) == 0 {
		t.Error("expected ParsedJSON")
	}
	if res.LatencyS <= 0 {
		t.Errorf("LatencyS = %v, want > 0", res.LatencyS)
	}
	if !res.Mock {
		t.Error("expected Mock")
	}

	if len(res.Calls) != 1 {
		t.Fatalf("len(Calls) = %d, want 1", len(res.Calls))
	}
	call := res.Calls[0]
	if call.PromptKey == "" || call.PromptHash == "" {
		t.Errorf("call missing prompt trace: %+v", call)
	}
	if call.Temperature == nil || *call.Temperature != DefaultTemperature {
		t.Errorf("call temperature = %v", call.Temperature)
	}

	reqs := client.Requests()
	if len(reqs) != 1 {
		t.Fatalf("len(Requests()) = %d, want 1", len(reqs))
	}
	if reqs[0].MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", reqs[0].MaxTokens, DefaultMaxTokens)
	}
	if reqs[0].Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v", reqs[0].Temperature)
	}
}

func TestSingleCallOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(c *providers.MockClient)
		opts        Options
		wantValid   bool
		wantOutcome Outcome
		wantReport  bool
		wantErr     string
	}{
		{
			name:        "prose without json falls back",
			setup:       func(c *providers.MockClient) { c.ResponseText = "I cannot tell from this." },
			wantValid:   true,
			wantOutcome: OutcomeDegraded,
			wantReport:  true,
			wantErr:     validate.ExtractionFailure,
		},
		{
			name:        "missing caveats is invalid",
			setup:       func(c *providers.MockClient) { c.ResponseText = `{"summary": "x", "known_pathogens": [], "ood_rate": 0.1}` },
			wantValid:   false,
			wantOutcome: OutcomeFailed,
			wantReport:  true,
			wantErr:     "caveats",
		},
		{
			name:        "transport failure",
			setup:       func(c *providers.MockClient) { c.ShouldFail = true },
			wantValid:   false,
			wantOutcome: OutcomeFailed,
			wantErr:     "configured to fail",
		},
		{
			name:        "timeout",
			setup:       func(c *providers.MockClient) { c.Latency = time.Second },
			opts:        Options{CallTimeout: 5 * time.Millisecond},
			wantValid:   false,
			wantOutcome: OutcomeFailed,
			wantErr:     "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fastMock()
			tt.setup(client)
			tech := NewRAGLite(client, tt.opts)

			res := tech.Run(context.Background(), sarsEvidence(), DefaultTemperature)

			if res.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", res.Valid, tt.wantValid)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
			if (res.Report != nil) != tt.wantReport {
				t.Errorf("Report = %+v, wantReport %v", res.Report, tt.wantReport)
			}
			if !strings.Contains(strings.Join(res.Errors, "\n"), tt.wantErr) {
				t.Errorf("Errors = %v, want one containing %q", res.Errors, tt.wantErr)
			}
			if !tt.wantReport && res.LatencyS != 0 {
				t.Errorf("LatencyS = %v, want 0 for a failed call", res.LatencyS)
			}
			if len(res.Calls) != 1 {
				t.Errorf("len(Calls) = %d, want 1", len(res.Calls))
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	reports := []*report.Report{
		{KnownPathogens: []report.Pathogen{{Taxon: "X", Confidence: 0.6}, {Taxon: "Y", Confidence: 0.5}}, OODRate: 0.1},
		{KnownPathogens: []report.Pathogen{{Taxon: "Z", Confidence: 0.9}, {Taxon: "X", Confidence: 0.8}}, OODRate: 0.3},
		{KnownPathogens: []report.Pathogen{{Taxon: "Z", Confidence: 0.7}}, OODRate: 0.2},
	}

	got := Aggregate(reports)
	want := &report.Report{
		Summary: "Consensus from 3 samples",
		KnownPathogens: []report.Pathogen{
			{Taxon: "X", Confidence: 0.7},
			{Taxon: "Z", Confidence: 0.8},
		},
		OODRate: 0.2,
		Caveats: []string{"Consensus from 3 samples", "Multiple sampling analysis"},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}

	t.Run("even split is not a majority", func(t *testing.T) {
		got := Aggregate(reports[:2])
		if len(got.KnownPathogens) != 1 || got.KnownPathogens[0].Taxon != "X" {
			t.Errorf("KnownPathogens = %+v, want only X", got.KnownPathogens)
		}
		if math.Abs(got.OODRate-0.2) > 1e-9 {
			t.Errorf("OODRate = %v, want 0.2", got.OODRate)
		}
	})
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{0.5}, 0.5},
		{[]float64{0.9, 0.1, 0.5}, 0.5},
		{[]float64{0.4, 0.2}, 0.3},
	}
	for _, tt := range tests {
		if got := median(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSelfConsistency(t *testing.T) {
	t.Run("majority vote", func(t *testing.T) {
		client := fastMock()
		client.Responses = []string{
			`{"summary": "a", "known_pathogens": [{"taxon": "X", "confidence": 0.6}, {"taxon": "Y", "confidence": 0.5}], "ood_rate": 0.1, "caveats": []}`,
			`{"summary": "b", "known_pathogens": [{"taxon": "X", "confidence": 0.8}], "ood_rate": 0.3, "caveats": []}`,
			`{"summary": "c", "known_pathogens": [{"taxon": "Z", "confidence": 0.9}], "ood_rate": 0.2, "caveats": []}`,
		}
		opts := Options{ConsensusSamples: 3, ConsensusParallel: 1}
		sc := NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts)

		res := sc.Run(context.Background(), sarsEvidence(), sc.DefaultTemperature())

		if !res.Valid || res.Outcome != OutcomeOK {
			t.Fatalf("Valid = %v, Outcome = %s, Errors = %v", res.Valid, res.Outcome, res.Errors)
		}
		wantPathogens := []report.Pathogen{{Taxon: "X", Confidence: 0.7}}
		if diff := cmp.Diff(wantPathogens, res.Report.KnownPathogens, approx); diff != "" {
			t.Errorf("KnownPathogens mismatch (-want +got):\n%s", diff)
		}
		if res.Report.OODRate != 0.2 {
			t.Errorf("OODRate = %v, want 0.2", res.Report.OODRate)
		}
		if res.Raw != "Aggregated from 3 valid samples" {
			t.Errorf("Raw = %q", res.Raw)
		}
		if len(res.Calls) != 3 {
			t.Errorf("len(Calls) = %d, want 3", len(res.Calls))
		}
		if client.RequestCount() != 3 {
			t.Errorf("RequestCount() = %d, want 3", client.RequestCount())
		}
		for _, req := range client.Requests() {
			if req.Temperature != SamplingTemperature {
				t.Errorf("sample temperature = %v, want %v", req.Temperature, SamplingTemperature)
			}
		}
	})

	t.Run("invalid samples are dropped", func(t *testing.T) {
		client := fastMock()
		client.Responses = []string{validReport, `{"summary": 5}`, validReport}
		opts := Options{ConsensusSamples: 3, ConsensusParallel: 1}
		sc := NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts)

		res := sc.Run(context.Background(), sarsEvidence(), SamplingTemperature)
		if res.Raw != "Aggregated from 2 valid samples" {
			t.Errorf("Raw = %q", res.Raw)
		}
		if res.Report.Summary != "Consensus from 2 samples" {
			t.Errorf("Summary = %q", res.Report.Summary)
		}
	})

	t.Run("no valid samples", func(t *testing.T) {
		client := fastMock()
		client.ShouldFail = true
		opts := Options{ConsensusSamples: 3}
		sc := NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts)

		res := sc.Run(context.Background(), sarsEvidence(), SamplingTemperature)

		if !res.Valid || res.Outcome != OutcomeDegraded {
			t.Errorf("Valid = %v, Outcome = %s", res.Valid, res.Outcome)
		}
		if diff := cmp.Diff([]string{NoValidSamples}, res.Errors); diff != "" {
			t.Errorf("Errors mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(report.Inconclusive(ConsensusFailedReason), res.Report); diff != "" {
			t.Errorf("Report mismatch (-want +got):\n%s", diff)
		}
		if res.Raw != "All 3 samples failed" {
			t.Errorf("Raw = %q", res.Raw)
		}
	})

	t.Run("panicking sample loses its slot", func(t *testing.T) {
		opts := Options{ConsensusSamples: 2}
		sc := NewSelfConsistency(panicTechnique{}, opts)

		res := sc.Run(context.Background(), sarsEvidence(), SamplingTemperature)
		if !res.Valid || res.Outcome != OutcomeDegraded {
			t.Errorf("Valid = %v, Outcome = %s", res.Valid, res.Outcome)
		}
		if res.Raw != "All 2 samples failed" {
			t.Errorf("Raw = %q", res.Raw)
		}
	})
}

type scriptedReply struct {
	content string
	latency time.Duration
}

// scriptedClient answers requests in arrival order with fixed contents and
// reported latencies, without sleeping.
type scriptedClient struct {
	replies []scriptedReply
	n       atomic.Int64
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Chat(_ context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	i := int(c.n.Add(1)) - 1
	r := c.replies[min(i, len(c.replies)-1)]
	return &providers.ChatResult{Content: r.content, ExecutionTime: r.latency, Success: true, Provider: "scripted"}, nil
}

func TestSelfConsistency_LatencyCountsValidSamples(t *testing.T) {
	client := &scriptedClient{replies: []scriptedReply{
		{content: validReport, latency: 100 * time.Millisecond},
		{content: `{"summary": 5}`, latency: 200 * time.Millisecond},
		{content: validReport, latency: 300 * time.Millisecond},
	}}
	opts := Options{ConsensusSamples: 3, ConsensusParallel: 1}
	sc := NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts)

	res := sc.Run(context.Background(), sarsEvidence(), SamplingTemperature)

	if res.Raw != "Aggregated from 2 valid samples" {
		t.Fatalf("Raw = %q", res.Raw)
	}
	if math.Abs(res.LatencyS-0.4) > 1e-9 {
		t.Errorf("LatencyS = %v, want 0.4 (invalid sample excluded)", res.LatencyS)
	}
	if len(res.Calls) != 3 {
		t.Errorf("len(Calls) = %d, want 3 including the invalid sample", len(res.Calls))
	}
}

func TestSelfConsistency_ConcurrentCompletionOrder(t *testing.T) {
	replies := []string{
		`{"summary": "a", "known_pathogens": [{"taxon": "X", "confidence": 0.6}, {"taxon": "Y", "confidence": 0.5}], "ood_rate": 0.1, "caveats": []}`,
		`{"summary": "b", "known_pathogens": [{"taxon": "X", "confidence": 0.8}], "ood_rate": 0.3, "caveats": []}`,
		`{"summary": "c", "known_pathogens": [{"taxon": "Z", "confidence": 0.9}, {"taxon": "X", "confidence": 0.2}], "ood_rate": 0.2, "caveats": []}`,
	}
	// The first request finishes last and the last finishes first.
	delays := []time.Duration{40 * time.Millisecond, 20 * time.Millisecond, 0}

	for range 3 {
		var arrived, inFlight, maxInFlight atomic.Int64
		client := fastMock()
		client.Respond = func(*providers.ChatRequest) (string, error) {
			i := arrived.Add(1) - 1
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(delays[i])
			inFlight.Add(-1)
			return replies[i], nil
		}
		opts := Options{ConsensusSamples: 3, ConsensusParallel: 3}
		sc := NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts)

		res := sc.Run(context.Background(), sarsEvidence(), SamplingTemperature)

		if !res.Valid || res.Outcome != OutcomeOK {
			t.Fatalf("Valid = %v, Outcome = %s, Errors = %v", res.Valid, res.Outcome, res.Errors)
		}
		// Y and Z appear in one sample each and are excluded.
		wantPathogens := []report.Pathogen{{Taxon: "X", Confidence: 0.6}}
		if diff := cmp.Diff(wantPathogens, res.Report.KnownPathogens, approx); diff != "" {
			t.Errorf("KnownPathogens mismatch (-want +got):\n%s", diff)
		}
		if math.Abs(res.Report.OODRate-0.2) > 1e-9 {
			t.Errorf("OODRate = %v, want 0.2", res.Report.OODRate)
		}
		if maxInFlight.Load() < 2 {
			t.Errorf("max in-flight samples = %d, want concurrent sampling", maxInFlight.Load())
		}
	}
}

// postprocessPanics panics while validating an otherwise good reply.
type postprocessPanics struct{ *RoleTaskConstraints }

func (p postprocessPanics) Postprocess(string) validate.Validation { panic("validator blew up") }

func (p postprocessPanics) Run(ctx context.Context, ev report.Evidence, temperature float64) Result {
	return p.run(ctx, p, ev, temperature)
}

func TestRunRecoversPanics(t *testing.T) {
	panicking := func() *providers.MockClient {
		c := fastMock()
		c.Respond = func(*providers.ChatRequest) (string, error) { panic("transport blew up") }
		return c
	}

	tests := []struct {
		name    string
		tech    Technique
		wantErr string
	}{
		{name: "client panic in single call", tech: NewRoleTaskConstraints(panicking(), Options{}), wantErr: "panic: transport blew up"},
		{name: "client panic in critique", tech: NewCritiqueAndRevise(panicking(), Options{}), wantErr: "panic: transport blew up"},
		{name: "postprocess panic", tech: postprocessPanics{NewRoleTaskConstraints(fastMock(), Options{})}, wantErr: "panic: validator blew up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Result
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Run() panicked: %v", r)
					}
				}()
				res = tt.tech.Run(context.Background(), sarsEvidence(), DefaultTemperature)
			}()

			if res.Valid || res.Outcome != OutcomeFailed {
				t.Errorf("Valid = %v, Outcome = %s", res.Valid, res.Outcome)
			}
			if diff := cmp.Diff([]string{tt.wantErr}, res.Errors); diff != "" {
				t.Errorf("Errors mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("latency is kept", func(t *testing.T) {
		res := postprocessPanics{NewRoleTaskConstraints(fastMock(), Options{})}.Run(context.Background(), sarsEvidence(), DefaultTemperature)
		if res.LatencyS <= 0 {
			t.Errorf("LatencyS = %v, want the completed call's latency", res.LatencyS)
		}
		if res.Raw == "" || len(res.Calls) != 1 {
			t.Errorf("Raw = %q, len(Calls) = %d", res.Raw, len(res.Calls))
		}
	})
}

type panicTechnique struct{}

func (panicTechnique) Key() string                 { return "panic" }
func (panicTechnique) Name() string                { return "Panic" }
func (panicTechnique) DefaultTemperature() float64 { return 0 }
func (panicTechnique) BuildMessages(report.Evidence) ([]providers.Message, error) {
	return nil, nil
}
func (panicTechnique) Postprocess(raw string) validate.Validation {
	return validate.ExtractAndValidate(raw)
}
func (panicTechnique) Run(context.Context, report.Evidence, float64) Result {
	panic("boom")
}

func TestCritiqueAndRevise(t *testing.T) {
	t.Run("revises the draft", func(t *testing.T) {
		client := fastMock()
		client.Responses = []string{"draft: probably SARS-CoV-2", validReport}
		tech := NewCritiqueAndRevise(client, Options{})

		res := tech.Run(context.Background(), sarsEvidence(), tech.DefaultTemperature())

		if !res.Valid || res.Outcome != OutcomeOK {
			t.Fatalf("Valid = %v, Outcome = %s, Errors = %v", res.Valid, res.Outcome, res.Errors)
		}
		if res.Raw != validReport {
			t.Errorf("Raw = %q", res.Raw)
		}
		if len(res.Calls) != 2 {
			t.Fatalf("len(Calls) = %d, want 2", len(res.Calls))
		}
		if res.Calls[0].Stage != StageDraft || res.Calls[1].Stage != StageRevise {
			t.Errorf("stages = %q, %q", res.Calls[0].Stage, res.Calls[1].Stage)
		}
		wantLatency := float64(res.Calls[0].LatencyMs+res.Calls[1].LatencyMs) / 1000
		if res.LatencyS < wantLatency {
			t.Errorf("LatencyS = %v, want at least %v", res.LatencyS, wantLatency)
		}

		reqs := client.Requests()
		if !strings.HasPrefix(reqs[1].Messages[0].Content, "Initial analysis: draft: probably SARS-CoV-2") {
			t.Errorf("revise request does not embed the draft:\n%s", reqs[1].Messages[0].Content)
		}
	})

	t.Run("draft failure", func(t *testing.T) {
		client := fastMock()
		client.ShouldFail = true
		tech := NewCritiqueAndRevise(client, Options{})

		res := tech.Run(context.Background(), sarsEvidence(), DefaultTemperature)
		if res.Valid || res.Report != nil {
			t.Errorf("Valid = %v, Report = %+v", res.Valid, res.Report)
		}
		if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "draft stage: ") {
			t.Errorf("Errors = %v", res.Errors)
		}
		if client.RequestCount() != 1 {
			t.Errorf("RequestCount() = %d, want 1", client.RequestCount())
		}
	})

	t.Run("revise failure", func(t *testing.T) {
		client := fastMock()
		client.FailAfter = 1
		tech := NewCritiqueAndRevise(client, Options{})

		res := tech.Run(context.Background(), sarsEvidence(), DefaultTemperature)
		if res.Valid || res.Report != nil || res.Outcome != OutcomeFailed {
			t.Errorf("Valid = %v, Report = %+v, Outcome = %s", res.Valid, res.Report, res.Outcome)
		}
		if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "revise stage: ") {
			t.Errorf("Errors = %v", res.Errors)
		}
		if len(res.Calls) != 2 {
			t.Errorf("len(Calls) = %d, want 2", len(res.Calls))
		}
	})
}
