package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/config"
	"github.com/jackzampolin/pathoprompt/internal/providers"
	"github.com/jackzampolin/pathoprompt/internal/svcctx"
	"github.com/jackzampolin/pathoprompt/internal/technique"
)

var providerName string

func addProviderFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&providerName, "provider", "", "LLM provider from config (default: defaults.llm_provider)")
}

// techniqueOptions maps config defaults onto technique options.
func techniqueOptions(d config.DefaultsCfg, s *svcctx.Services) technique.Options {
	return technique.Options{
		MaxTokens:         d.MaxTokens,
		CallTimeout:       d.CallTimeout(),
		ConsensusSamples:  d.ConsensusSamples,
		ConsensusParallel: d.ConsensusParallel,
		Logger:            s.Logger,
	}
}

// resolveClient picks the requested provider, falling back to the mock
// client when it is not available.
func resolveClient(s *svcctx.Services) (providers.LLMClient, error) {
	name := providerName
	if name == "" {
		name = s.Config.Get().Defaults.LLMProvider
	}
	client, fellBack, err := s.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	if fellBack {
		s.Logger.Warn("running in mock mode", "requested", name, "available", s.Registry.ListLLM())
	}
	return client, nil
}

// buildTechniques loads services and builds the technique registry.
func buildTechniques(cmd *cobra.Command) (*svcctx.Services, []technique.Technique, error) {
	s, err := loadServices(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := resolveClient(s)
	if err != nil {
		return nil, nil, err
	}
	opts := techniqueOptions(s.Config.Get().Defaults, s)
	return s, technique.NewRegistry(client, opts), nil
}
