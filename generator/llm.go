package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64

	// Retry and rate limit knobs; zero disables the layer.
	MaxRetries int
	RPS        float64
	Burst      int
}

// PermanentError marks a provider failure that retrying will not fix, such
// as a rejected key or a malformed request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("model returned empty completion")

// NewLLM builds the provider client named by s.Provider and wraps it with
// rate limiting and retries.
func NewLLM(ctx context.Context, s LLMSettings) (LLMClient, error) {
	var (
		inner LLMClient
		err   error
	)
	switch strings.ToLower(s.Provider) {
	case "openai":
		inner, err = NewOpenAILLM(s)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if s.BaseURL == "" {
			return nil, errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		inner, err = NewOpenAILLM(s)
	case "gemini":
		inner, err = NewGeminiLLM(ctx, s)
	case "mock":
		inner = MockLLM{}
	case "":
		return nil, errors.New("llm provider is required")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", s.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(inner, RateLimit(s.RPS, s.Burst), Retry(s.MaxRetries)), nil
}
