package logger

import (
	"log/slog"
	"strconv"
)

// Well-known attribute keys. Log queries and dashboards depend on them.
const (
	KeyComponent        = "component"
	KeyUserID           = "user_id"
	KeyBusinessID       = "business_id"
	KeyBranchID         = "branch_id"
	KeyNotificationID   = "notification_id"
	KeyNotificationType = "notification_type"
	KeyChannel          = "channel"
	KeyAttempt          = "attempt"
)

func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error returns an empty Attr for a nil err, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors", keyed by their position.
func Errors(errs ...error) slog.Attr {
	var group []slog.Attr
	for i, err := range errs {
		if err != nil {
			group = append(group, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(group) == 0 {
		return slog.Attr{}
	}
	return Group("errors", group...)
}

// id drops nil and empty-string identifiers so optional scope fields
// (guest recipients, business-wide sends) leave no key behind.
func id(key string, v any) slog.Attr {
	switch v := v.(type) {
	case nil:
		return slog.Attr{}
	case string:
		if v == "" {
			return slog.Attr{}
		}
		return slog.String(key, v)
	default:
		return slog.Any(key, v)
	}
}

func UserID(v any) slog.Attr         { return id(KeyUserID, v) }
func BusinessID(v any) slog.Attr     { return id(KeyBusinessID, v) }
func BranchID(v any) slog.Attr       { return id(KeyBranchID, v) }
func NotificationID(v any) slog.Attr { return id(KeyNotificationID, v) }

func NotificationType(t string) slog.Attr { return slog.String(KeyNotificationType, t) }
func Channel(ch string) slog.Attr         { return slog.String(KeyChannel, ch) }
func Component(name string) slog.Attr     { return slog.String(KeyComponent, name) }

// Attempt is 1-based.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

func Duration(d any) slog.Attr { return slog.Any("duration", d) }
