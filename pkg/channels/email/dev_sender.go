package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// DevSender writes every message as a JSON file instead of sending it.
type DevSender struct {
	dir       string
	templates []string
	now       func() time.Time
}

// DevOption configures a DevSender.
type DevOption func(*DevSender)

// WithKnownTemplates makes the sender reject templates outside names,
// the way the production provider rejects unknown aliases.
func WithKnownTemplates(names ...string) DevOption {
	return func(d *DevSender) {
		d.templates = names
	}
}

// WithDevClock overrides the time source used in file names.
func WithDevClock(now func() time.Time) DevOption {
	return func(d *DevSender) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDevSender creates a sender that saves messages to dir.
// The directory is created on first send.
func NewDevSender(dir string, opts ...DevOption) *DevSender {
	d := &DevSender{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type devRecord struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Message   Message `json:"message"`
}

func (d *DevSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if len(d.templates) > 0 && !slices.Contains(d.templates, msg.Template) {
		return "", fmt.Errorf("%w: %s", notifications.ErrTemplateNotFound, msg.Template)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	id := uuid.NewString()
	data, err := json.MarshalIndent(devRecord{
		ID:        id,
		Timestamp: now.Format(time.RFC3339),
		Message:   msg,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal message: %v", ErrFailedToSendEmail, err)
	}

	name := fmt.Sprintf("%s_%s_%s.json", now.Format("2006_01_02_150405"), sanitizeFilename(msg.Template), id[:8])
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: failed to write message file: %v", ErrFailedToSendEmail, err)
	}
	return id, nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename turns s into a short, lower-case file name fragment.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
