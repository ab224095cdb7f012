package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
)

// Supported lists the accepted LLM_PROVIDER values.
var Supported = []string{"openai", "anthropic", "ollama", "lmstudio", "deepseek", "groq"}

// compatible describes an OpenAI-compatible endpoint configured through
// <PREFIX>_API_KEY, <PREFIX>_MODEL and <PREFIX>_BASE_URL.
type compatible struct {
	prefix       string
	displayName  string
	defaultModel string
	defaultURL   string
	defaultKey   string // local servers accept any key
}

var compatibleProviders = map[string]compatible{
	"openai": {
		prefix:       "OPENAI",
		displayName:  "OpenAI",
		defaultModel: "gpt-4o-mini",
	},
	"ollama": {
		prefix:       "OLLAMA",
		displayName:  "Ollama",
		defaultModel: "llama3.1",
		defaultURL:   "http://localhost:11434/v1",
		defaultKey:   "ollama",
	},
	"lmstudio": {
		prefix:       "LMSTUDIO",
		displayName:  "LM Studio",
		defaultModel: "local-model",
		defaultURL:   "http://localhost:1234/v1",
		defaultKey:   "lm-studio",
	},
	"deepseek": {
		prefix:       "DEEPSEEK",
		displayName:  "DeepSeek",
		defaultModel: "deepseek-chat",
		defaultURL:   "https://api.deepseek.com/v1",
	},
	"groq": {
		prefix:       "GROQ",
		displayName:  "Groq",
		defaultModel: "llama-3.1-70b-versatile",
		defaultURL:   "https://api.groq.com/openai/v1",
	},
}

// NewLLMClientFromEnv creates an engine.LLMClient from LLM_PROVIDER and the
// provider's own variables. It returns the client and the model name.
func NewLLMClientFromEnv(_ context.Context) (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	if provider == "anthropic" {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		modelName := getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")

		client, err := NewAnthropicClient(apiKey, modelName, os.Getenv("ANTHROPIC_BASE_URL"))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, modelName, nil
	}

	p, ok := compatibleProviders[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %v)", provider, Supported)
	}

	apiKey := getEnvOrDefault(p.prefix+"_API_KEY", p.defaultKey)
	if apiKey == "" {
		return nil, "", fmt.Errorf("%s_API_KEY not set", p.prefix)
	}
	modelName := getEnvOrDefault(p.prefix+"_MODEL", p.defaultModel)
	baseURL := getEnvOrDefault(p.prefix+"_BASE_URL", p.defaultURL)

	client, err := NewOpenAIClient(apiKey, modelName, baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", p.displayName, err)
	}
	return client, modelName, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
