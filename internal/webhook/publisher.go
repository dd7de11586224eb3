package webhook

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
)

const userAgent = "FF-Custody-Ledger-Webhook/1.0"

// Config holds the configuration for webhook delivery
type Config struct {
	Endpoints      []Endpoint
	WorkerPoolSize int // Concurrent deliveries across endpoints
}

type publisher struct {
	endpoints []Endpoint
	pool      pond.Pool
	client    adapter.HTTPClient
	clock     adapter.Clock
}

// NewPublisher creates a publisher that fans each notification out to the subscribed endpoints
func NewPublisher(cfg Config, client adapter.HTTPClient, clock adapter.Clock) (messaging.Publisher, error) {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}

	for i, endpoint := range cfg.Endpoints {
		if endpoint.URL == "" {
			return nil, fmt.Errorf("webhook endpoint %d: url is required", i)
		}
		if _, err := hex.DecodeString(endpoint.Secret); err != nil || endpoint.Secret == "" {
			return nil, fmt.Errorf("webhook endpoint %s: secret must be non-empty hex", endpoint.URL)
		}
	}

	return &publisher{
		endpoints: cfg.Endpoints,
		pool:      pond.NewPool(cfg.WorkerPoolSize),
		client:    client,
		clock:     clock,
	}, nil
}

// Name identifies the publisher
func (p *publisher) Name() string {
	return "webhook"
}

// PublishNotification delivers the notification to every matching endpoint concurrently.
// Endpoints rejecting the event with a 4xx are logged and skipped; any retryable failure
// fails the whole publish so the relay redelivers (endpoints deduplicate on event_id).
func (p *publisher) PublishNotification(ctx context.Context, n *domain.Notification) error {
	event := WebhookEvent{
		EventID:   n.ID,
		EventType: EventTypePrefix + string(n.Type),
		Timestamp: n.CreatedAt.UTC(),
		Data:      messaging.NewNotificationMessage(n),
	}

	var tasks []pond.Task
	for _, endpoint := range p.endpoints {
		if !endpoint.Matches(event.EventType) {
			continue
		}

		endpoint := endpoint
		tasks = append(tasks, p.pool.SubmitErr(func() error {
			result, err := p.deliver(ctx, endpoint, event)
			if err == nil {
				return nil
			}
			if isPermanentFailure(result) {
				logger.ErrorCtx(ctx, fmt.Errorf("webhook rejected by endpoint: %w", err),
					zap.String("url", endpoint.URL),
					zap.String("event_id", event.EventID),
					zap.Int("status_code", result.StatusCode))
				return nil
			}
			return fmt.Errorf("%s: %w", endpoint.URL, err)
		}))
	}

	var errs []error
	for _, task := range tasks {
		if err := task.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// deliver signs and posts the event to one endpoint
func (p *publisher) deliver(ctx context.Context, endpoint Endpoint, event WebhookEvent) (DeliveryResult, error) {
	timestamp := p.clock.Now().Unix()

	payload, signature, err := GenerateSignedPayload(endpoint.Secret, event, timestamp)
	if err != nil {
		return DeliveryResult{Error: err.Error()}, err
	}

	headers := map[string]string{
		"Content-Type":         "application/json",
		"X-Webhook-Signature":  signature,
		"X-Webhook-Event-ID":   event.EventID,
		"X-Webhook-Event-Type": event.EventType,
		"X-Webhook-Timestamp":  strconv.FormatInt(timestamp, 10),
		"User-Agent":           userAgent,
	}

	resp, err := p.client.Post(ctx, endpoint.URL, headers, payload)

	result := DeliveryResult{Success: err == nil}
	if resp != nil {
		result.StatusCode = resp.StatusCode
		result.Body = resp.Body
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	logger.DebugCtx(ctx, "Webhook delivered",
		zap.String("url", endpoint.URL),
		zap.String("event_id", event.EventID),
		zap.Int("status_code", result.StatusCode))

	return result, nil
}

// isPermanentFailure reports client errors that redelivery cannot fix
func isPermanentFailure(result DeliveryResult) bool {
	return result.StatusCode >= http.StatusBadRequest &&
		result.StatusCode < http.StatusInternalServerError &&
		result.StatusCode != http.StatusTooManyRequests
}

// Close stops the worker pool after in-flight deliveries complete
func (p *publisher) Close() {
	p.pool.StopAndWait()
}
