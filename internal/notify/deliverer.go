package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

const userAgent = "destruction-portal-webhooks/1.0"

type delivererQuerier interface {
	GetDelivery(ctx context.Context, id uuid.UUID) (store.WebhookDelivery, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (store.WebhookEndpoint, error)
	GetDomainEvent(ctx context.Context, id uuid.UUID) (store.DomainEvent, error)
	MarkDelivery(ctx context.Context, id uuid.UUID, status, lastError string) error
}

// Deliverer executes webhook deliveries. Returning an error from HandleTask
// makes asynq retry with its own backoff; the delivery row tracks attempts
// and last error for the admin API.
type Deliverer struct {
	Q      delivererQuerier
	Client *http.Client
	Logger zerolog.Logger
}

// HTTPClient builds the outbound client used for deliveries.
func HTTPClient(timeout time.Duration, allowInsecureTLS bool) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 4,
	}
	if allowInsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// HandleTask is the asynq handler for TaskWebhookDeliver.
func (d *Deliverer) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload deliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never succeed; drop instead of retrying.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	deliveryID, err := uuid.Parse(payload.DeliveryID)
	if err != nil {
		return fmt.Errorf("parse delivery id: %v: %w", err, asynq.SkipRetry)
	}

	delivery, err := d.Q.GetDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("load delivery %s: %w", deliveryID, err)
	}
	if delivery.Status == "delivered" {
		return nil
	}
	endpoint, err := d.Q.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		_ = d.Q.MarkDelivery(ctx, deliveryID, "failed", "endpoint missing")
		return fmt.Errorf("load endpoint: %v: %w", err, asynq.SkipRetry)
	}
	if !endpoint.Active {
		_ = d.Q.MarkDelivery(ctx, deliveryID, "skipped", "endpoint inactive")
		return nil
	}
	event, err := d.Q.GetDomainEvent(ctx, delivery.EventID)
	if err != nil {
		_ = d.Q.MarkDelivery(ctx, deliveryID, "failed", "event missing")
		return fmt.Errorf("load event: %v: %w", err, asynq.SkipRetry)
	}

	status, deliverErr := d.deliver(ctx, endpoint, event, delivery)
	if deliverErr == nil {
		obs.IncWebhookDelivery("delivered")
		if err := d.Q.MarkDelivery(ctx, deliveryID, "delivered", ""); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		d.Logger.Info().
			Str("delivery_id", deliveryID.String()).
			Str("topic", event.Topic).
			Int("status", status).
			Msg("webhook delivered")
		return nil
	}

	obs.IncWebhookDelivery("failed")
	reason := fmt.Sprintf("status=%d err=%v", status, deliverErr)
	if err := d.Q.MarkDelivery(ctx, deliveryID, "failed", reason); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	d.Logger.Warn().
		Str("delivery_id", deliveryID.String()).
		Str("topic", event.Topic).
		Str("reason", reason).
		Msg("webhook delivery failed")
	return deliverErr
}

type webhookBody struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (d *Deliverer) deliver(ctx context.Context, ep store.WebhookEndpoint, ev store.DomainEvent, del store.WebhookDelivery) (int, error) {
	if err := validateURL(ep.URL); err != nil {
		return 0, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	body, err := json.Marshal(webhookBody{
		EventID:    ev.ID.String(),
		Topic:      ev.Topic,
		Data:       json.RawMessage(ev.Payload),
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-ID", ev.ID.String())
	req.Header.Set("X-Delivery-ID", del.ID.String())
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", Signature(ep.Secret, ts, body))

	client := d.Client
	if client == nil {
		client = HTTPClient(10*time.Second, false)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Signature computes the hex HMAC-SHA256 over "<timestamp>.<body>" so
// receivers can verify both integrity and freshness.
func Signature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid endpoint url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("endpoint url must be http or https")
	}
	if u.Host == "" {
		return errors.New("endpoint url missing host")
	}
	return nil
}
