package llm

import (
	"context"
	"strings"
)

// MockClient is a test double for the LLM Client interface.
// It can also be used for dry-run mode.
type MockClient struct {
	Response *Response
	Err      error
	Calls    []string // records prompts sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.Calls = append(m.Calls, prompt)
	return m.Response, m.Err
}

// MockSummarizer is a test double for the Summarizer interface. FailOn
// (matched as a substring of the input text) lets a test fail one item
// of a batch.
type MockSummarizer struct {
	Text   string
	Err    error
	FailOn string
	Calls  []Mode
}

// Summarize records the mode and returns the canned text or error.
func (m *MockSummarizer) Summarize(ctx context.Context, text string, mode Mode) (string, error) {
	m.Calls = append(m.Calls, mode)
	if m.Err != nil {
		return "", m.Err
	}
	if m.FailOn != "" && strings.Contains(text, m.FailOn) {
		return "", context.DeadlineExceeded
	}
	return m.Text, nil
}
