// Package notify reports finished runs to Slack.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/pipeline"
)

const previewRunes = 280

// SlackNotifier posts a summary of each run to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	// PreviewURL, when set, is formatted with the post id to link the preview page.
	PreviewURL string
}

// NewSlackNotifier returns nil when webhookURL is empty so callers can wire
// it unconditionally.
func NewSlackNotifier(webhookURL string, client *http.Client) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackNotifier{webhookURL: webhookURL, client: client}
}

func (n *SlackNotifier) Notify(ctx context.Context, res pipeline.Result) error {
	if n == nil {
		slog.Debug("slack webhook not configured, skipping", "run_id", res.RunID)
		return nil
	}
	msg := Message(res, n.PreviewURL)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	slog.Info("slack notified", "run_id", res.RunID, "status", res.Status)
	return nil
}

// Message renders res as a webhook payload.
func Message(res pipeline.Result, previewURL string) *slack.WebhookMessage {
	title := headline(res)

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Run:* `%s`\n*User:* `%s`\n", res.RunID, res.UserID)
	if res.Status == domain.StatusFailed {
		fmt.Fprintf(&sb, "*Error (%s):*\n```\n%s\n```", res.ErrorKind, res.Error)
	} else {
		fmt.Fprintf(&sb, "*Post:* `%s`\n*Versions:* %d (refines: %d)\n", res.PostID, res.Versions, res.RefineCalls)
		if res.ImageRef != "" {
			fmt.Fprintf(&sb, "*Image:* `%s`\n", res.ImageRef)
		} else if res.ImageError != "" {
			fmt.Fprintf(&sb, "*Image:* none (%s)\n", res.ImageError)
		}
		if previewURL != "" && res.PostID != "" {
			fmt.Fprintf(&sb, "<%s|Preview>\n", fmt.Sprintf(previewURL, res.PostID))
		}
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, sb.String(), false, false), nil, nil),
	}
	if res.Status != domain.StatusFailed && res.FinalDraft.Text != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.PlainTextType, preview(res.FinalDraft.Text), false, false), nil, nil))
	}
	return &slack.WebhookMessage{
		Text:   title,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func headline(res pipeline.Result) string {
	switch res.Status {
	case domain.StatusAccepted:
		return "Post ready"
	case domain.StatusExhausted:
		return "Post ready (best effort)"
	}
	return "Post run failed"
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	r := []rune(text)
	return string(r[:previewRunes]) + "…"
}
