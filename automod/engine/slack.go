package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bluesky-social/guildmod/util"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          util.RobustHTTPClient(),
	}
}

func (n *SlackNotifier) SendAudit(ctx context.Context, rec *AuditRecord) error {
	return n.sendSlackMsg(ctx, slackBody("⚠️ Automod Rule Action ⚠️\n", rec))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(header string, rec *AuditRecord) string {
	msg := header
	msg += fmt.Sprintf("Rule `%s` (`%s`) in guild `%s`\n", rec.RuleName, rec.TriggerType, rec.GuildID)
	msg += fmt.Sprintf("User `%s`", rec.UserID)
	if rec.ChannelID != "" {
		msg += fmt.Sprintf(" in channel `%s`", rec.ChannelID)
	}
	msg += "\n"
	if rec.Reason != "" {
		msg += fmt.Sprintf("Reason: %s\n", rec.Reason)
	}
	if len(rec.TriggerData) > 0 {
		keys := make([]string, 0, len(rec.TriggerData))
		for k := range rec.TriggerData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, rec.TriggerData[k]))
		}
		msg += fmt.Sprintf("Data: `%s`\n", strings.Join(parts, ", "))
	}
	for _, res := range rec.ActionResults {
		if res.Success {
			msg += fmt.Sprintf("Action `%s`: ok", res.Action)
		} else {
			msg += fmt.Sprintf("Action `%s`: failed (%s)", res.Action, res.Error)
		}
		if res.Note != "" {
			msg += fmt.Sprintf(" [%s]", res.Note)
		}
		msg += "\n"
	}
	return msg
}
