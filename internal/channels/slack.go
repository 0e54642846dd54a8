package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KafClaw/PairClaw/internal/bus"
	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/slack-go/slack"
)

// SlackChannel posts owner notifications to an incoming webhook.
type SlackChannel struct {
	BaseChannel
	config config.NotifyConfig
}

func NewSlackChannel(cfg config.NotifyConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled || strings.TrimSpace(c.config.SlackWebhookURL) == "" {
		return nil
	}
	c.Bus.Subscribe(func(n *bus.Notification) {
		if err := c.Send(ctx, n); err != nil {
			slog.Warn("Slack notification failed", "owner", n.Owner, "kind", n.Kind, "error", err)
		}
	})
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

func (c *SlackChannel) Send(ctx context.Context, n *bus.Notification) error {
	url := strings.TrimSpace(c.config.SlackWebhookURL)
	if url == "" {
		return nil
	}
	msg := &slack.WebhookMessage{
		Text: Format(n),
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, Format(n), false, false), nil, nil),
			slack.NewContextBlock("", slack.NewTextBlockObject(slack.PlainTextType, "relation "+n.RelationID, false, false)),
		}},
	}
	if err := slack.PostWebhookContext(ctx, url, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// Format renders a notification as one line of Slack markdown.
func Format(n *bus.Notification) string {
	var head string
	switch n.Kind {
	case bus.KindReviewRequested:
		head = ":handshake: Review requested"
	case bus.KindEstablished:
		head = ":white_check_mark: Relation established"
	case bus.KindRejected:
		head = ":x: Relation rejected"
	case bus.KindReset:
		head = ":leftwards_arrow_with_hook: Relation reset"
	case bus.KindPaused:
		head = ":double_vertical_bar: Negotiation stopped"
	default:
		head = n.Kind
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* for `%s`", head, n.Owner)
	if n.Counterpart != "" {
		fmt.Fprintf(&sb, " with `%s`", n.Counterpart)
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		sb.WriteString(": ")
		sb.WriteString(t)
	}
	return sb.String()
}
