package main

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chordcoord/internal/config"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
	"github.com/MrWong99/chordcoord/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chordcoord/pkg/provider/llm/openai"
)

// registerBuiltinProviders wires every built-in LLM factory into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai and azure go through the official SDK.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("azure", func(entry config.ProviderEntry) (llm.Provider, error) {
		endpoint := optString(entry.Options, "azure_endpoint")
		if endpoint == "" {
			endpoint = entry.BaseURL
		}
		return openai.New(entry.APIKey, entry.Model,
			openai.WithAzure(endpoint, optString(entry.Options, "api_version")))
	})

	// The remaining vendors share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	slog.Debug("registered llm providers", "names", reg.LLMNames())
}
