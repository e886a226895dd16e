package notify

import (
	"context"
	"fmt"

	xhttp "FinPulse/pkg/http"
)

type webhookPayload struct {
	Text string `json:"text"`
}

// Webhook posts {"text": ...} to a Slack-style incoming webhook.
type Webhook struct {
	name string
	url  string
	http *xhttp.Client
}

func NewWebhook(name, url string, client *xhttp.Client) *Webhook {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(defaultTimeout))
	}
	return &Webhook{name: name, url: url, http: client}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Send(ctx context.Context, text string) error {
	err := w.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    w.url,
		Body:   webhookPayload{Text: text},
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.name, err)
	}
	return nil
}
