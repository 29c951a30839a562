package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Prompt keys
const (
	RoleTaskConstraintsKey = "techniques.role_task_constraints"
	FewShotContrastiveKey  = "techniques.few_shot_contrastive"
	StructuredJSONGuardKey = "techniques.structured_json_guard"
	RAGLiteKey             = "techniques.rag_lite"
	ChainOfVerificationKey = "techniques.chain_of_verification"
	CritiqueDraftKey       = "techniques.critique_draft"
	CritiqueReviseKey      = "techniques.critique_revise"
)

// ErrPromptNotFound is returned for keys that were never registered.
var ErrPromptNotFound = errors.New("prompt not found")

var descriptions = map[string]string{
	RoleTaskConstraintsKey: "Role, confidence thresholds and the literal report schema",
	FewShotContrastiveKey:  "One good and one corrected bad worked example",
	StructuredJSONGuardKey: "Formatting emphasis with compact schema and an inline fallback object",
	RAGLiteKey:             "Pipeline context and interpretive notes before the request",
	ChainOfVerificationKey: "Assessment, verification checklist and final JSON in one message",
	CritiqueDraftKey:       "Minimal draft request for critique-and-revise",
	CritiqueReviseKey:      "Reviewer checklist applied to an embedded draft",
}

// Catalog holds registered prompts and their parsed templates.
type Catalog struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
	parsed  map[string]*template.Template
	logger  *slog.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		prompts: make(map[string]Prompt),
		parsed:  make(map[string]*template.Template),
		logger:  logger,
	}
}

// Register parses and stores a prompt. Hash and Variables are computed when
// left empty. A template that fails to parse is rejected.
func (c *Catalog) Register(p Prompt) error {
	if p.Key == "" {
		return fmt.Errorf("prompt key is required")
	}
	tmpl, err := template.New(p.Key).Option("missingkey=error").Parse(p.Text)
	if err != nil {
		return fmt.Errorf("parse prompt %s: %w", p.Key, err)
	}
	if p.Hash == "" {
		p.Hash = HashText(p.Text)
	}
	if p.Variables == nil {
		p.Variables = ExtractVariables(p.Text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts[p.Key] = p
	c.parsed[p.Key] = tmpl
	c.logger.Debug("registered prompt", "key", p.Key, "vars", p.Variables)
	return nil
}

// Get returns the prompt registered under key.
func (c *Catalog) Get(key string) (Prompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prompts[key]
	return p, ok
}

// All returns every registered prompt ordered by key.
func (c *Catalog) All() []Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Prompt, 0, len(c.prompts))
	for _, p := range c.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Render executes the prompt under key against data.
// The returned Prompt identifies the exact text that was rendered.
func (c *Catalog) Render(key string, data any) (string, Prompt, error) {
	c.mu.RLock()
	p, ok := c.prompts[key]
	tmpl := c.parsed[key]
	c.mu.RUnlock()
	if !ok {
		return "", Prompt{}, fmt.Errorf("%w: %s", ErrPromptNotFound, key)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", p, fmt.Errorf("render prompt %s: %w", key, err)
	}
	return strings.TrimRight(buf.String(), "\n"), p, nil
}

// LoadEmbedded registers every template shipped with the binary.
func (c *Catalog) LoadEmbedded() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("read embedded templates: %w", err)
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		text, err := templateFS.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			return fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		key := "techniques." + name
		if err := c.Register(Prompt{
			Key:         key,
			Text:        string(text),
			Description: descriptions[key],
		}); err != nil {
			return err
		}
	}
	return nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c := NewCatalog(nil)
	if err := c.LoadEmbedded(); err != nil {
		panic(err)
	}
	return c
})

// Default returns the shared catalog of embedded templates.
func Default() *Catalog {
	return defaultCatalog()
}
