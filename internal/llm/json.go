package llm

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"
)

// ErrBadOutput covers malformed, empty, or otherwise unusable completions.
// Callers treat it the same as a timeout: fall back to canned content.
var ErrBadOutput = errors.New("llm: unusable output")

// GenerateJSON asks the model for a JSON document, enforcing a hard timeout.
// Markdown code fences around the body are tolerated. Anything that does not
// parse as JSON is reported as ErrBadOutput.
func GenerateJSON(ctx context.Context, c Client, systemPrompt, userPrompt string, timeout time.Duration) (gjson.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := c.Chat(ctx, systemPrompt, userPrompt)
	if err != nil {
		return gjson.Result{}, err
	}

	body := stripFences(raw)
	if body == "" || !gjson.Valid(body) {
		return gjson.Result{}, ErrBadOutput
	}
	return gjson.Parse(body), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// HasCJK reports whether the string contains at least one CJK rune. Quest
// titles are expected in Chinese; an all-ASCII reply usually means the model
// ignored the prompt language.
func HasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
