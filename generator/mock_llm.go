package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// Its output is a pure function of the prompt.
type MockLLM struct{}

const mockBodyLimit = 600

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	body := promptContent(prompt)
	if r := []rune(body); len(r) > mockBodyLimit {
		body = strings.TrimSpace(string(r[:mockBodyLimit])) + "..."
	}

	var sb strings.Builder
	sb.WriteString("Here is something worth sharing.\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\nWhat's your take? Share your thoughts below.")
	if !strings.Contains(prompt.System, "Hashtags: none") {
		sb.WriteString("\n\n#insights #learning #growth")
	}
	return sb.String(), nil
}
