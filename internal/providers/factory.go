// Package providers adapts LLM SDKs to engine.LLMClient.
package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

// Config selects a provider. Empty fields are filled from the provider's
// environment variables and then its defaults.
type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

type apiKind int

const (
	apiOpenAI apiKind = iota
	apiAnthropic
)

// preset describes one supported provider. Everything except anthropic
// speaks the OpenAI chat completions dialect.
type preset struct {
	api          apiKind
	keyEnv       string
	modelEnv     string
	baseURLEnv   string
	defaultModel string
	defaultURL   string
	// defaultKey marks local servers that accept any key.
	defaultKey string
}

var presets = map[string]preset{
	"openai":    {api: apiOpenAI, keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", baseURLEnv: "OPENAI_BASE_URL", defaultModel: "gpt-4o-mini"},
	"anthropic": {api: apiAnthropic, keyEnv: "ANTHROPIC_API_KEY", modelEnv: "ANTHROPIC_MODEL", baseURLEnv: "ANTHROPIC_BASE_URL", defaultModel: "claude-3-5-sonnet-latest"},
	"kimi":      {api: apiOpenAI, keyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", baseURLEnv: "KIMI_BASE_URL", defaultModel: "kimi-k2-250711", defaultURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {api: apiOpenAI, keyEnv: "GEMINI_API_KEY", modelEnv: "GEMINI_MODEL", defaultModel: "gemini-1.5-flash", defaultURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"deepseek":  {api: apiOpenAI, keyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL", defaultModel: "deepseek-chat", defaultURL: "https://api.deepseek.com/v1"},
	"groq":      {api: apiOpenAI, keyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL", defaultModel: "llama-3.1-70b-versatile", defaultURL: "https://api.groq.com/openai/v1"},
	"lmstudio":  {api: apiOpenAI, keyEnv: "LMSTUDIO_API_KEY", modelEnv: "LMSTUDIO_MODEL", baseURLEnv: "LMSTUDIO_BASE_URL", defaultModel: "local-model", defaultURL: "http://localhost:1234/v1", defaultKey: "lm-studio"},
	"ollama":    {api: apiOpenAI, keyEnv: "OLLAMA_API_KEY", modelEnv: "OLLAMA_MODEL", baseURLEnv: "OLLAMA_BASE_URL", defaultModel: "llama3.1", defaultURL: "http://localhost:11434/v1", defaultKey: "ollama"},
}

// Supported lists the provider names New accepts.
func Supported() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve fills cfg from the environment and the provider defaults.
// LLM_PROVIDER picks the provider when cfg does not.
func Resolve(cfg Config) (Config, error) {
	if cfg.Provider == "" {
		cfg.Provider = os.Getenv("LLM_PROVIDER")
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	p, ok := presets[cfg.Provider]
	if !ok {
		return cfg, fmt.Errorf("unknown LLM provider %q (supported: %s)", cfg.Provider, strings.Join(Supported(), ", "))
	}

	cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv(p.keyEnv), p.defaultKey)
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("%s not set", p.keyEnv)
	}
	cfg.Model = firstNonEmpty(cfg.Model, os.Getenv(p.modelEnv), p.defaultModel)
	if p.baseURLEnv != "" {
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv(p.baseURLEnv))
	}
	cfg.BaseURL = firstNonEmpty(cfg.BaseURL, p.defaultURL)
	return cfg, nil
}

// New resolves cfg and builds the client. It returns the model name to use.
func New(cfg Config, logger zerolog.Logger) (engine.LLMClient, string, error) {
	cfg, err := Resolve(cfg)
	if err != nil {
		return nil, "", err
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("llm client ready")

	if presets[cfg.Provider].api == apiAnthropic {
		return NewAnthropicClient(cfg.APIKey, cfg.BaseURL, logger), cfg.Model, nil
	}
	return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, logger), cfg.Model, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
