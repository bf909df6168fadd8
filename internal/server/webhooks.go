package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"spiceledger/internal/domain"
	"spiceledger/internal/engine"
)

const (
	defaultWebhookInterval = 5 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher delivers audit events to the registered subscribers.
// Subscriptions and cursors live in the database, so deliveries resume where
// they stopped after a restart.
type webhookDispatcher struct {
	engine engine.Engine
	client *http.Client
}

// StartWebhookDispatcher runs delivery in the background until ctx ends.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine) {
	d := &webhookDispatcher{
		engine: e,
		client: &http.Client{Timeout: defaultWebhookTimeout},
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) interval() time.Duration {
	if d.engine.Config != nil && d.engine.Config.Webhooks.PollIntervalSeconds > 0 {
		return time.Duration(d.engine.Config.Webhooks.PollIntervalSeconds) * time.Second
	}
	return defaultWebhookInterval
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	hooks, err := d.engine.Repo.ListWebhooks(ctx)
	if err != nil {
		log.Printf("webhook: list subscribers failed: %v", err)
		return
	}
	for _, hook := range hooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, hook domain.Webhook) {
	cursor, err := d.engine.Repo.WebhookCursor(ctx, hook.ID)
	if err != nil {
		log.Printf("webhook: read cursor for %s failed: %v", hook.ID, err)
		return
	}
	events, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		log.Printf("webhook: fetch events failed: %v", err)
		return
	}
	for _, evt := range events {
		if err := d.postEvent(ctx, hook, evt); err != nil {
			log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
			return
		}
		if err := d.engine.Repo.SetWebhookCursor(ctx, hook.ID, evt.ID); err != nil {
			log.Printf("webhook: advance cursor for %s failed: %v", hook.ID, err)
			return
		}
	}
}

type webhookEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Player    string          `json:"player,omitempty"`
	TS        string          `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook domain.Webhook, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := webhookEvent{
		ID:        evt.ID,
		Type:      evt.Type,
		SessionID: evt.SessionID,
		Player:    evt.Player,
		TS:        evt.TS,
		Payload:   payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Spiceledger-Event", evt.Type)
	req.Header.Set("X-Spiceledger-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Spiceledger-Secret", hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
