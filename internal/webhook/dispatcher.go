package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/config"
	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/observability"
	"github.com/youcloud/sla-engine/pkg/util"
)

const userAgent = "SLA-Engine/1"

// TicketPayload is the ticket section of the escalation notification.
type TicketPayload struct {
	ID           int64  `json:"id"`
	Subject      string `json:"subject"`
	Priority     string `json:"priority"`
	Status       string `json:"status"`
	Organization string `json:"organization,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// EscalationPayload describes the transition that triggered delivery.
type EscalationPayload struct {
	Level          int     `json:"level"`
	LevelName      string  `json:"level_name"`
	SLATargetHours float64 `json:"sla_target_hours"`
	EscalatedAt    string  `json:"escalated_at"`
}

// PartnerPayload identifies the receiving partner.
type PartnerPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Notification is the JSON body POSTed to a partner webhook.
type Notification struct {
	Event      string            `json:"event"`
	Ticket     TicketPayload     `json:"ticket"`
	Escalation EscalationPayload `json:"escalation"`
	Partner    PartnerPayload    `json:"partner"`
}

// BuildNotification assembles the escalation payload for a delivery.
func BuildNotification(ticket *domain.Ticket, partner *domain.Partner, level int, slaHours float64, escalatedAt time.Time) Notification {
	t := TicketPayload{
		ID:        ticket.ID,
		Subject:   ticket.Subject,
		Priority:  string(ticket.Priority),
		Status:    string(ticket.Status),
		CreatedAt: ticket.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ticket.OrganizationName != nil {
		t.Organization = *ticket.OrganizationName
	}
	if ticket.CreatedBy != nil {
		t.CreatedBy = *ticket.CreatedBy
	}
	return Notification{
		Event:  "ticket_escalated",
		Ticket: t,
		Escalation: EscalationPayload{
			Level:          level,
			LevelName:      domain.LevelName(level),
			SLATargetHours: slaHours,
			EscalatedAt:    escalatedAt.UTC().Format(time.RFC3339),
		},
		Partner: PartnerPayload{
			ID:   partner.ID,
			Name: partner.Name,
			Type: string(partner.Tier),
		},
	}
}

// Dispatcher delivers escalation notifications to partner endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, partner *domain.Partner, notification Notification) error
}

// HTTPDispatcher posts notifications over HTTP with bounded retries.
// Delivery failures never affect committed escalation state; callers log
// the returned error and move on.
type HTTPDispatcher struct {
	client  *http.Client
	cfg     config.WebhookConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHTTPDispatcher builds a dispatcher from configuration.
func NewHTTPDispatcher(cfg config.WebhookConfig, metrics *observability.Metrics, logger *zap.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDispatcher{
		client:  &http.Client{Timeout: cfg.Timeout()},
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Dispatch posts the notification to the partner's webhook URL. Attempts
// back off quadratically; a 4xx response other than 408/429 is treated as
// permanent and stops the retry loop.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, partner *domain.Partner, notification Notification) error {
	if !partner.HasWebhook() {
		return nil
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return util.NewInternalError(fmt.Errorf("marshal webhook payload: %w", err))
	}

	attempts := d.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			retry := attempt - 1
			backoff := time.Duration(retry*retry) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		status, err := d.post(ctx, partner, body)
		if err == nil {
			d.metrics.RecordWebhook(true)
			d.logger.Info("webhook delivered",
				zap.Int64("partner_id", partner.ID),
				zap.Int64("ticket_id", notification.Ticket.ID),
				zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		d.logger.Warn("webhook attempt failed",
			zap.Int64("partner_id", partner.ID),
			zap.Int64("ticket_id", notification.Ticket.ID),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err))
		if permanentStatus(status) {
			break
		}
	}
	d.metrics.RecordWebhook(false)
	return &util.DomainError{
		Kind:       util.KindWebhookTransient,
		Message:    fmt.Sprintf("webhook delivery to partner %d failed after retries", partner.ID),
		HTTPStatus: http.StatusBadGateway,
		Err:        lastErr,
	}
}

// post performs a single delivery attempt and returns the response status
// code, or 0 when no response was received.
func (d *HTTPDispatcher) post(ctx context.Context, partner *domain.Partner, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *partner.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if partner.APIKey != nil && *partner.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+*partner.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("webhook endpoint returned %s", resp.Status)
}

// permanentStatus reports whether a response code should stop retries.
func permanentStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}
