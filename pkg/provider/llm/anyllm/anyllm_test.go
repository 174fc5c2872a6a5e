package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-3-5-sonnet-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "persona",
		Messages: []llm.Message{
			{Role: "user", Content: "Hello!", Name: "alice"},
			{Role: "assistant", Content: "Hi there!"},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	})

	if params.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system + 2)", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Name != "alice" {
		t.Errorf("name = %q, want alice", params.Messages[1].Name)
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature = %v, want 0.4", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("max tokens = %v, want 512", params.MaxTokens)
	}
}

func TestBuildParams_ZeroTuningOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "q"}},
	})
	if params.Temperature != nil {
		t.Error("zero temperature should be omitted")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens should be omitted")
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1 (no system prompt)", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model         string
		contextWindow int
		maxOutput     int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4o", 128_000, 16_384},
		{"gpt-4-turbo", 128_000, 4_096},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"o1", 200_000, 100_000},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"claude-3-5-sonnet-latest", 200_000, 8_192},
		{"claude-future-model", 200_000, 8_192},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"my-custom-model", 128_000, 4_096},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			caps := modelCapabilities(tc.model)
			if caps.ContextWindow != tc.contextWindow {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tc.contextWindow)
			}
			if caps.MaxOutputTokens != tc.maxOutput {
				t.Errorf("max output = %d, want %d", caps.MaxOutputTokens, tc.maxOutput)
			}
			if !caps.SupportsStreaming {
				t.Error("expected SupportsStreaming")
			}
		})
	}
}

func TestModelCapabilities_CaseInsensitive(t *testing.T) {
	lower := modelCapabilities("gpt-4o")
	upper := modelCapabilities("GPT-4O")
	if lower.ContextWindow != upper.ContextWindow {
		t.Errorf("case should not matter: %d vs %d", lower.ContextWindow, upper.ContextWindow)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNew_SupportedProviders(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"openai", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"anthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"ollama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"mistral", func() (*Provider, error) {
			return New("mistral", "mistral-large-latest", anyllmlib.WithAPIKey("test"))
		}},
		{"groq", func() (*Provider, error) { return New("groq", "llama-3.1-70b", anyllmlib.WithAPIKey("test")) }},
		{"llamacpp", func() (*Provider, error) { return New("llamacpp", "llama3") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider")
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	count, err := p.CountTokens(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("empty messages counted %d tokens", count)
	}

	one, _ := p.CountTokens([]llm.Message{{Role: "user", Content: "Hello"}})
	two, _ := p.CountTokens([]llm.Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there, how can I help?"},
	})
	if one <= 0 {
		t.Errorf("single message counted %d tokens", one)
	}
	if two <= one {
		t.Errorf("two messages counted %d, one counted %d", two, one)
	}
}

func TestCapabilities_DelegatesToModel(t *testing.T) {
	p := &Provider{model: "gemini-1.5-pro"}
	if got := p.Capabilities(); got != modelCapabilities("gemini-1.5-pro") {
		t.Errorf("Capabilities() = %+v", got)
	}
}
