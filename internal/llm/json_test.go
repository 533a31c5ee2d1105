package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubClient struct {
	reply string
	err   error
	delay time.Duration
}

func (s *stubClient) Chat(ctx context.Context, system, user string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func TestGenerateJSONStripsFences(t *testing.T) {
	c := &stubClient{reply: "```json\n{\"quests\":[{\"title\":\"系統重啟\"}]}\n```"}
	res, err := GenerateJSON(context.Background(), c, "sys", "usr", time.Second)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if got := res.Get("quests.0.title").String(); got != "系統重啟" {
		t.Errorf("expected title parsed, got %q", got)
	}
}

func TestGenerateJSONRejectsGarbage(t *testing.T) {
	c := &stubClient{reply: "sorry, I can't do that"}
	_, err := GenerateJSON(context.Background(), c, "sys", "usr", time.Second)
	if !errors.Is(err, ErrBadOutput) {
		t.Errorf("expected ErrBadOutput, got %v", err)
	}
}

func TestGenerateJSONTimesOut(t *testing.T) {
	c := &stubClient{reply: "{}", delay: 200 * time.Millisecond}
	_, err := GenerateJSON(context.Background(), c, "sys", "usr", 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHasCJK(t *testing.T) {
	if !HasCJK("稀有｜資料同步") {
		t.Error("expected CJK detection")
	}
	if HasCJK("plain english title") {
		t.Error("ascii string should not pass")
	}
}
