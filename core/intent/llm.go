package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/folioforge/concierge/core/providers"
)

const (
	llmPriority   = 30
	llmMethodName = "llm"

	llmMaxTokens = 256
)

const llmSystemPrompt = `You classify a portfolio-builder user's message into exactly one or more of these assistant domains:

- support: product questions, problems, bugs, documentation, tickets
- profile: the user's profile, bio, headline, skills, links, account email
- projects: portfolio projects, creating, editing, archiving, visibility
- navigator: requests to open or go to a part of the app
- planner: multi-step requests spanning more than one domain

Respond with only a JSON object: {"agents": ["<domain>", ...], "confidence": <0.0-1.0>}.
List agents in execution order. Use more than one only when the message genuinely needs several domains.`

// llmVerdict is the JSON shape the model must return.
type llmVerdict struct {
	Agents     []string `json:"agents"`
	Confidence float64  `json:"confidence"`
}

// LLMStage is the routing cascade's last resort: a non-streaming
// classification completion. It runs only when cheaper stages leave
// the route unclear.
type LLMStage struct {
	provider providers.Provider
	model    string
}

// NewLLMStage wraps a provider as a classification stage. An empty
// model uses the provider's default.
func NewLLMStage(provider providers.Provider, model string) *LLMStage {
	return &LLMStage{provider: provider, model: model}
}

func (s *LLMStage) Classify(ctx context.Context, q Query) (*StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewStageResult()
	result.SetMethod(llmMethodName)

	if q.Message == "" {
		return result, nil
	}

	temp := 0.0
	resp, err := s.provider.Generate(ctx, &providers.Request{
		SystemPrompt: llmSystemPrompt,
		Model:        s.model,
		MaxTokens:    llmMaxTokens,
		Temperature:  &temp,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: q.Message},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	for _, name := range verdict.Agents {
		agent := Agent(strings.ToLower(strings.TrimSpace(name)))
		if !agent.Valid() {
			continue
		}
		result.AddAgent(agent, verdict.Confidence, []string{"llm"})
	}

	// The LLM is the final stage; nothing runs after it regardless.
	result.MarkComplete()
	return result, nil
}

// parseVerdict extracts the JSON object from the completion, tolerating
// surrounding prose or code fences.
func parseVerdict(content string) (*llmVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var verdict llmVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", verdict.Confidence)
	}
	return &verdict, nil
}

func (s *LLMStage) Name() string {
	return llmMethodName
}

func (s *LLMStage) Priority() int {
	return llmPriority
}
