package alerts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"remindpoint/internal/types"
)

// platform identifies a chat-webhook destination flavor.
type platform string

const (
	platformGeneric    platform = "generic"
	platformSlack      platform = "slack"
	platformGoogleChat platform = "google_chat"
)

// detectPlatform inspects the destination URL to pick a payload format.
// Unknown hosts get the generic JSON payload.
func detectPlatform(url string) platform {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "hooks.slack.com") {
		return platformSlack
	}
	if strings.Contains(lower, "chat.googleapis.com") {
		return platformGoogleChat
	}
	return platformGeneric
}

// slackPayload is a minimal Block Kit message.
type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Elements []*slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// googleChatPayload is a Google Chat Cards message.
type googleChatPayload struct {
	Cards []googleCard `json:"cards"`
}

type googleCard struct {
	Header   googleHeader    `json:"header"`
	Sections []googleSection `json:"sections"`
}

type googleHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

type googleSection struct {
	Widgets []googleWidget `json:"widgets"`
}

type googleWidget struct {
	TextParagraph *googleTextParagraph `json:"textParagraph,omitempty"`
}

type googleTextParagraph struct {
	Text string `json:"text"`
}

// formatPayload renders an alert as the destination platform's JSON body.
func formatPayload(p platform, a types.Alert) ([]byte, error) {
	switch p {
	case platformSlack:
		return formatSlack(a)
	case platformGoogleChat:
		return formatGoogleChat(a)
	default:
		return formatGeneric(a)
	}
}

func formatSlack(a types.Alert) ([]byte, error) {
	fallback := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Title)
	payload := slackPayload{
		Text: fallback,
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: a.Title},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: a.Body},
			},
			{
				Type: "context",
				Elements: []*slackText{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("*Severity*: %s | *Alert*: %s | Remindpoint", string(a.Severity), string(a.Type)),
					},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatGoogleChat(a types.Alert) ([]byte, error) {
	payload := googleChatPayload{
		Cards: []googleCard{
			{
				Header: googleHeader{
					Title:    a.Title,
					Subtitle: fmt.Sprintf("Severity: %s | Alert: %s", string(a.Severity), string(a.Type)),
				},
				Sections: []googleSection{
					{
						Widgets: []googleWidget{
							{TextParagraph: &googleTextParagraph{Text: a.Body}},
						},
					},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatGeneric(a types.Alert) ([]byte, error) {
	payload := map[string]any{
		"alert_type": string(a.Type),
		"severity":   string(a.Severity),
		"title":      a.Title,
		"body":       a.Body,
		"raised_at":  a.RaisedAt.UTC().Format(time.RFC3339),
	}
	if a.TenantID != "" {
		payload["tenant_id"] = a.TenantID
	}
	if len(a.Detail) > 0 {
		payload["detail"] = a.Detail
	}
	return json.Marshal(payload)
}
