package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

const templateNotFoundCode = "template_not_found"

// Provider delivers SMS channel jobs to a JSON-over-HTTP gateway.
type Provider struct {
	endpoint string
	cfg      Config
	client   *http.Client
	breaker  *breaker
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the logger for the Provider.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source used for signatures and the breaker.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider creates the SMS channel provider for the gateway in cfg.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: SMS_GATEWAY_URL must be an http(s) URL", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: SMS_API_KEY is required", ErrInvalidConfig)
	}

	p := &Provider{
		endpoint: strings.TrimRight(u.String(), "/") + "/messages",
		cfg:      cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.breaker = newBreaker(cfg.BreakerFailures, cfg.BreakerRecovery, p.now)
	p.logger = p.logger.With(logger.Component("sms"))
	return p, nil
}

type sendRequest struct {
	To        string         `json:"to"`
	From      string         `json:"from,omitempty"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data,omitempty"`
	Reference string         `json:"reference"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// Send makes one delivery attempt. Retrying is left to the queue.
func (p *Provider) Send(ctx context.Context, job notifications.Job) (notifications.Result, error) {
	if job.Recipient.Mobile == "" {
		return notifications.Result{}, fmt.Errorf("%w: mobile", notifications.ErrMissingContact)
	}

	payload, err := json.Marshal(sendRequest{
		To:        job.Recipient.Mobile,
		From:      p.cfg.SenderID,
		Template:  job.TemplateID,
		Data:      job.TemplateData,
		Reference: job.RecordID,
	})
	if err != nil {
		return notifications.Result{}, queue.Permanent(fmt.Errorf("failed to marshal sms request: %w", err))
	}

	if !p.breaker.allow() {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "gateway circuit open, skipping attempt",
			logger.NotificationID(job.RecordID))
		return notifications.Result{}, ErrCircuitOpen
	}

	status, body, err := p.post(ctx, job.RecordID, payload)
	if err != nil {
		p.breaker.failure()
		return notifications.Result{}, errors.Join(ErrGatewayFailure, err)
	}

	var resp sendResponse
	_ = json.Unmarshal(body, &resp)

	switch {
	case status >= 200 && status < 300:
		p.breaker.success()
		return notifications.Result{ExternalID: resp.MessageID}, nil
	case retryableStatus(status):
		p.breaker.failure()
		return notifications.Result{}, fmt.Errorf("%w: status %d %s", ErrGatewayFailure, status, resp.Message)
	}

	// The gateway answered and refused this message, it is healthy.
	p.breaker.success()
	if resp.Error == templateNotFoundCode {
		return notifications.Result{}, fmt.Errorf("%w: %s", notifications.ErrTemplateNotFound, job.TemplateID)
	}
	return notifications.Result{}, queue.Permanent(fmt.Errorf("%w: status %d %s %s", ErrRejected, status, resp.Error, resp.Message))
}

func (p *Provider) post(ctx context.Context, reference string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "posnotify-sms/1.0")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Idempotency-Key", reference)
	if p.cfg.SigningSecret != "" {
		ts := p.now().Unix()
		req.Header.Set("X-Signature-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Signature", sign(p.cfg.SigningSecret, ts, payload))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, body, nil
}

// sign is HMAC-SHA256(secret, "<unix ts>.<payload>") in hex.
func sign(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(h, "%d.%s", ts, payload)
	return hex.EncodeToString(h.Sum(nil))
}

// retryableStatus reports gateway answers another attempt may fix.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

var _ notifications.Provider = (*Provider)(nil)
