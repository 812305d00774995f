package app

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/causalfractal/contextengine/internal/config"
	"github.com/causalfractal/contextengine/pkg/provider/embeddings"
	embeddingsollama "github.com/causalfractal/contextengine/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/causalfractal/contextengine/pkg/provider/embeddings/openai"
	"github.com/causalfractal/contextengine/pkg/provider/llm"
	"github.com/causalfractal/contextengine/pkg/provider/llm/anyllm"
	llmopenai "github.com/causalfractal/contextengine/pkg/provider/llm/openai"
)

// RegisterDefaultProviders registers the engine's built-in LLM and
// embeddings factories under the names [config.ValidProviderNames] lists.
// "openai" talks to the OpenAI API directly; every other LLM backend name
// routes through any-llm-go, which multiplexes a single client across
// providers.
func RegisterDefaultProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backend := range []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		backend := backend
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(backend, entry.Model, anyllmOptions(entry)...)
		})
	}
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		providerName, _ := entry.Options["provider"].(string)
		if providerName == "" {
			return nil, fmt.Errorf("app: anyllm provider requires options.provider")
		}
		return anyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []embeddingsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(entry.BaseURL))
		}
		return embeddingsopenai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embeddingsollama.New(baseURL, entry.Model)
	})
}

func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}
