package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordPort sends each batch as a single DM.
type DiscordPort struct {
	session *discordgo.Session
}

func NewDiscordPort(token string) (*DiscordPort, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}
	return &DiscordPort{session: s}, nil
}

func (p *DiscordPort) Close() {
	p.session.Close()
}

func (p *DiscordPort) PushMessage(ctx context.Context, userID string, messages []string) error {
	ch, err := p.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	if _, err := p.session.ChannelMessageSend(ch.ID, strings.Join(messages, "\n\n")); err != nil {
		return fmt.Errorf("sending DM: %w", err)
	}
	return nil
}

// WebhookPort posts batches to a single webhook URL, tagged with the user id.
// Used where no bot token is configured.
type WebhookPort struct {
	url  string
	http *http.Client
}

func NewWebhookPort(url string) *WebhookPort {
	return &WebhookPort{url: url, http: &http.Client{}}
}

func (p *WebhookPort) PushMessage(ctx context.Context, userID string, messages []string) error {
	payload := map[string]string{
		"content": fmt.Sprintf("[%s]\n%s", userID, strings.Join(messages, "\n\n")),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
