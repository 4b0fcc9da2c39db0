package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/palace/internal/errs"
)

// Mode selects the compression style for Summarize.
type Mode string

const (
	// ModeSummary produces a narrative summary (tier1 -> tier2 promotion).
	ModeSummary Mode = "tier2"
	// ModeLesson produces bullet-style distilled lessons (tier2 -> tier3).
	ModeLesson Mode = "tier3"
)

// Summarizer is the external summarization collaborator consumed by the
// Chambers engine during promotion and crystallization.
type Summarizer interface {
	Summarize(ctx context.Context, text string, mode Mode) (string, error)
}

// ClientSummarizer adapts a Client into a Summarizer with a bounded
// per-call timeout. A slow provider surfaces ErrTimeout instead of
// hanging the batch.
type ClientSummarizer struct {
	Client  Client
	Timeout time.Duration
}

// NewSummarizer wraps a Client with the given per-call timeout.
func NewSummarizer(c Client, timeout time.Duration) *ClientSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClientSummarizer{Client: c, Timeout: timeout}
}

// Summarize sends the mode-specific prompt and returns the trimmed
// completion text.
func (s *ClientSummarizer) Summarize(ctx context.Context, text string, mode Mode) (string, error) {
	var prompt string
	switch mode {
	case ModeSummary:
		prompt = SummaryPrompt(text)
	case ModeLesson:
		prompt = LessonPrompt(text)
	default:
		return "", fmt.Errorf("summarize mode %q: %w", mode, errs.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resp, err := s.Client.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("summarize: %w", errs.ErrTimeout)
		}
		return "", fmt.Errorf("summarize: %w: %v", errs.ErrUnavailable, err)
	}
	return strings.TrimSpace(resp.Content), nil
}
