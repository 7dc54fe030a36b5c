package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// Messenger sends one message to many device tokens.
// *messaging.Client satisfies it.
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// StaleTokenFunc is told about tokens FCM no longer recognizes.
type StaleTokenFunc func(ctx context.Context, userID string, tokens []string)

// Provider delivers PUSH channel jobs through FCM.
type Provider struct {
	messenger Messenger
	onStale   StaleTokenFunc
	isStale   func(error) bool
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithStaleTokenHandler registers fn for tokens reported as unregistered.
func WithStaleTokenHandler(fn StaleTokenFunc) Option {
	return func(p *Provider) {
		p.onStale = fn
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

// NewProvider creates the PUSH channel provider over m.
func NewProvider(m Messenger, opts ...Option) *Provider {
	p := &Provider{
		messenger: m,
		isStale:   messaging.IsUnregistered,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("push"))
	return p
}

// NewMessagingClient initializes a Firebase app from cfg and returns its
// messaging client.
func NewMessagingClient(ctx context.Context, cfg Config) (*messaging.Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return client, nil
}

// Send delivers job to every token carried by the job. It succeeds when at
// least one device accepted the message.
func (p *Provider) Send(ctx context.Context, job notifications.Job) (notifications.Result, error) {
	if len(job.PushTokens) == 0 {
		return notifications.Result{}, notifications.ErrNoPushTokens
	}

	resp, err := p.messenger.SendEachForMulticast(ctx, buildMessage(job))
	if err != nil {
		return notifications.Result{}, fmt.Errorf("fcm multicast: %w", err)
	}

	var (
		messageID string
		stale     []string
		errs      []error
	)
	for i, r := range resp.Responses {
		if r.Success {
			if messageID == "" {
				messageID = r.MessageID
			}
			continue
		}
		if p.isStale(r.Error) {
			stale = append(stale, job.PushTokens[i])
			continue
		}
		errs = append(errs, r.Error)
	}

	if len(stale) > 0 {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "dropping stale push tokens",
			logger.NotificationID(job.RecordID),
			logger.UserID(job.Recipient.UserID),
			slog.Int("count", len(stale)),
		)
		if p.onStale != nil {
			p.onStale(ctx, job.Recipient.UserID, stale)
		}
	}

	if resp.SuccessCount > 0 {
		return notifications.Result{ExternalID: messageID}, nil
	}
	if len(errs) == 0 {
		// Every token is gone, another attempt cannot reach the user.
		return notifications.Result{}, fmt.Errorf("%w: all tokens unregistered", notifications.ErrNoPushTokens)
	}
	return notifications.Result{}, errors.Join(append([]error{ErrDeliveryFailed}, errs...)...)
}

func buildMessage(job notifications.Job) *messaging.MulticastMessage {
	title := job.Subject
	if title == "" {
		title = stringValue(job.TemplateData, "title")
	}
	body := stringValue(job.TemplateData, "body")

	data := map[string]string{
		"record_id":   job.RecordID,
		"type":        string(job.Type),
		"template_id": job.TemplateID,
	}
	for k, v := range job.TemplateData {
		if _, taken := data[k]; taken {
			continue
		}
		switch v := v.(type) {
		case string:
			data[k] = v
		case fmt.Stringer:
			data[k] = v.String()
		case int, int32, int64, float32, float64, bool:
			data[k] = fmt.Sprint(v)
		}
	}

	androidPriority, apnsPriority := "normal", "5"
	if job.Priority == notifications.PriorityCritical || job.Priority == notifications.PriorityHigh {
		androidPriority, apnsPriority = "high", "10"
	}

	return &messaging.MulticastMessage{
		Tokens:       job.PushTokens,
		Data:         data,
		Notification: &messaging.Notification{Title: title, Body: body},
		Android:      &messaging.AndroidConfig{Priority: androidPriority},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
		},
	}
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

var _ notifications.Provider = (*Provider)(nil)
