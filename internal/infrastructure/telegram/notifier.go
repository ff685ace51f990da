package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const defaultEndpoint = "https://api.telegram.org"

// Notifier sends item alerts to a Telegram chat via bot API.
type Notifier struct {
	botToken    string
	chatID      string
	endpoint    string
	minPriority domain.Priority
	client      *http.Client
	logger      *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier returns nil when the bot token or chat is missing, which callers
// treat as "alerts disabled".
func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, nil
	}
	minPriority := domain.PriorityHigh
	if cfg.MinPriority != "" {
		p, err := domain.ParsePriority(cfg.MinPriority)
		if err != nil {
			return nil, fmt.Errorf("telegram min priority: %w", err)
		}
		minPriority = p
	}
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		botToken:    cfg.BotToken,
		chatID:      cfg.ChatID,
		endpoint:    endpoint,
		minPriority: minPriority,
		client:      &http.Client{Timeout: 5 * time.Second},
		logger:      logger.With("component", "telegram"),
	}, nil
}

// MinPriority is the lowest tier that triggers an alert.
func (n *Notifier) MinPriority() domain.Priority {
	return n.minPriority
}

// NotifyItem posts an alert for item; items below the configured tier are ignored.
func (n *Notifier) NotifyItem(ctx context.Context, item domain.Item, sourceName string) error {
	if item.Priority < n.minPriority {
		return nil
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatItem(item, sourceName))
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	n.logger.Debug("alert sent", "item", item.ID, "priority", item.Priority.String())
	return nil
}

func formatItem(item domain.Item, sourceName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s]</b> %s\n", strings.ToUpper(item.Priority.String()), html.EscapeString(item.Title))
	if sourceName != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(sourceName))
	}
	if item.Analysis.LLM != nil && item.Analysis.LLM.Category != "" {
		fmt.Fprintf(&b, "AK: %s\n", html.EscapeString(item.Analysis.LLM.Category))
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "%s", html.EscapeString(item.URL))
	}
	return strings.TrimRight(b.String(), "\n")
}
