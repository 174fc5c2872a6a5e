package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when folding new
// turns into the rolling summary.
const summarisationPrompt = `Progressively summarise the conversation between a human and an AI psychologist.
You are given the current summary and the new lines of conversation. Produce an updated summary that folds the new lines in.
Preserve: the human's stated goals and values, emotional states, insights reached, exercises assigned, and commitments made.
Be concise but keep everything a counsellor would need to continue the conversation later.
Respond with the updated summary only.`

// summariseTemperature keeps summary updates stable across turns without
// being fully greedy.
const summariseTemperature = 0.3

// Summariser maintains a rolling text summary of a conversation by repeatedly
// folding new turns into the previous summary. It is the only continuity
// signal that survives a process restart.
type Summariser struct {
	llm llm.Provider
}

// NewSummariser creates a [Summariser] backed by the given provider.
func NewSummariser(provider llm.Provider) *Summariser {
	return &Summariser{llm: provider}
}

// Summarise folds turns into prior and returns the updated summary together
// with the token usage of the summarisation call. An empty prior is allowed;
// the result is then a summary of just the new turns.
func (s *Summariser) Summarise(ctx context.Context, prior string, turns []llm.Message) (string, llm.Usage, error) {
	if len(turns) == 0 {
		return prior, llm.Usage{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Current summary:\n")
	if prior == "" {
		sb.WriteString("(none — this is the start of the conversation)\n")
	} else {
		sb.WriteString(prior)
		sb.WriteString("\n")
	}
	sb.WriteString("\nNew lines of conversation:\n")
	for _, m := range turns {
		speaker := speakerLabel(m)
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{
				Role:    "user",
				Content: sb.String(),
			},
		},
		Temperature: summariseTemperature,
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("summarise: %w", err)
	}

	return strings.TrimSpace(resp.Content), resp.Usage, nil
}

// speakerLabel maps a message to the transcript label shown to the summariser.
func speakerLabel(m llm.Message) string {
	if m.Name != "" {
		return m.Name
	}
	switch m.Role {
	case "user":
		return "Human"
	case "assistant":
		return "AI Psychologist"
	}
	return m.Role
}
