package technique

import (
	"fmt"

	"github.com/jackzampolin/pathoprompt/internal/providers"
)

// NewRegistry builds every technique around one client, in comparison order.
// Self-Consistency wraps its own Role+Task+Constraints instance.
func NewRegistry(client providers.LLMClient, opts Options) []Technique {
	opts = opts.withDefaults()
	return []Technique{
		NewRoleTaskConstraints(client, opts),
		NewFewShotContrastive(client, opts),
		NewStructuredJSONGuard(client, opts),
		NewRAGLite(client, opts),
		NewSelfConsistency(NewRoleTaskConstraints(client, opts), opts),
		NewChainOfVerification(client, opts),
		NewCritiqueAndRevise(client, opts),
	}
}

// Keys returns the registry keys of techniques in order.
func Keys(techniques []Technique) []string {
	keys := make([]string, len(techniques))
	for i, t := range techniques {
		keys[i] = t.Key()
	}
	return keys
}

// Lookup finds a technique by registry key.
func Lookup(techniques []Technique, key string) (Technique, error) {
	for _, t := range techniques {
		if t.Key() == key {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, key)
}
