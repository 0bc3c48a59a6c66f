package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iamwavecut/phishguard/internal/adapters"
	"github.com/iamwavecut/phishguard/internal/adapters/llm"
)

const (
	probabilityPrompt = "You are a spam and phishing detection system for group chats. " +
		"Respond with only a single number between 0 and 1: the probability that the " +
		"following message is spam or phishing. No words, no punctuation, just the number."
	binaryPrompt = "You are a spam and phishing detection system for group chats. " +
		"Respond with only the word true if the following message is spam or phishing, " +
		"or false if it is not. Consider advertising, scams and credential harvesting as spam."
)

// LLMModel scores through a chat-completion backend (openai or gemini).
type LLMModel struct {
	llm adapters.LLM
}

func NewLLMModel(backend adapters.LLM) *LLMModel {
	return &LLMModel{llm: backend}
}

func (m *LLMModel) Probability(ctx context.Context, text string) (float64, error) {
	content, err := m.complete(ctx, probabilityPrompt, text)
	if err != nil {
		return 0, err
	}
	prob, err := strconv.ParseFloat(content, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probability %q: %w", content, err)
	}
	if prob < 0 || prob > 1 {
		return 0, fmt.Errorf("probability %v out of range", prob)
	}
	return prob, nil
}

func (m *LLMModel) Binary(ctx context.Context, text string) (bool, error) {
	content, err := m.complete(ctx, binaryPrompt, text)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(content) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("unexpected binary verdict %q", content)
}

func (m *LLMModel) complete(ctx context.Context, system, text string) (string, error) {
	resp, err := m.llm.ChatCompletion(ctx, []llm.ChatCompletionMessage{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: text},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices available")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
