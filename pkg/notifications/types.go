package notifications

import (
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// Type is the business event a notification reports.
type Type string

const (
	TypeBillCreated          Type = "BILL_CREATED"
	TypeBillUpdated          Type = "BILL_UPDATED"
	TypeBillCancelled        Type = "BILL_CANCELLED"
	TypePaymentReceived      Type = "PAYMENT_RECEIVED"
	TypeRefundIssued         Type = "REFUND_ISSUED"
	TypeLowStock             Type = "LOW_STOCK"
	TypeOutOfStock           Type = "OUT_OF_STOCK"
	TypeStockAdjusted        Type = "STOCK_ADJUSTED"
	TypePurchaseOrderCreated Type = "PURCHASE_ORDER_CREATED"
	TypeVendorPaymentDue     Type = "VENDOR_PAYMENT_DUE"
	TypeWalletCredited       Type = "WALLET_CREDITED"
	TypeWalletDebited        Type = "WALLET_DEBITED"
	TypeLoyaltyPointsEarned  Type = "LOYALTY_POINTS_EARNED"
	TypeUserInvited          Type = "USER_INVITED"
	TypeRoleChanged          Type = "ROLE_CHANGED"
	TypeSystemAlert          Type = "SYSTEM_ALERT"
	TypeCustom               Type = "CUSTOM"
)

// allTypes fixes the index of every Type in per-type tables.
var allTypes = [...]Type{
	TypeBillCreated,
	TypeBillUpdated,
	TypeBillCancelled,
	TypePaymentReceived,
	TypeRefundIssued,
	TypeLowStock,
	TypeOutOfStock,
	TypeStockAdjusted,
	TypePurchaseOrderCreated,
	TypeVendorPaymentDue,
	TypeWalletCredited,
	TypeWalletDebited,
	TypeLoyaltyPointsEarned,
	TypeUserInvited,
	TypeRoleChanged,
	TypeSystemAlert,
	TypeCustom,
}

const numTypes = len(allTypes)

// Types returns every known notification type in table order.
func Types() []Type {
	return append([]Type(nil), allTypes[:]...)
}

func (t Type) index() (int, bool) {
	for i, known := range allTypes {
		if known == t {
			return i, true
		}
	}
	return -1, false
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	_, ok := t.index()
	return ok
}

func (t Type) String() string { return string(t) }

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
	ChannelInApp Channel = "IN_APP"
)

var allChannels = []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp}

// Channels returns every known channel.
func Channels() []Channel {
	return append([]Channel(nil), allChannels...)
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Queued reports whether delivery on c goes through a channel queue.
// IN_APP is written straight to the record store.
func (c Channel) Queued() bool {
	return c.Valid() && c != ChannelInApp
}

// Queue is the name of the channel queue jobs for c are enqueued on.
func (c Channel) Queue() string {
	switch c {
	case ChannelEmail:
		return "notify.email"
	case ChannelPush:
		return "notify.push"
	case ChannelSMS:
		return "notify.sms"
	}
	return ""
}

// RequiresUser reports whether c can only reach a registered user.
func (c Channel) RequiresUser() bool {
	return c == ChannelPush || c == ChannelInApp
}

func (c Channel) String() string { return string(c) }

// Priority orders notifications from CRITICAL down to LOW.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

var allPriorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Weight maps p onto the queue ordering value: the lower, the sooner dequeued.
func (p Priority) Weight() queue.Priority {
	switch p {
	case PriorityCritical:
		return queue.PriorityCritical
	case PriorityHigh:
		return queue.PriorityHigh
	case PriorityLow:
		return queue.PriorityLow
	default:
		return queue.PriorityMedium
	}
}

func (p Priority) String() string { return string(p) }

// Status is the delivery state of a record or of one of its channel entries.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusQueued  Status = "QUEUED"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

var allStatuses = []Status{StatusPending, StatusQueued, StatusSent, StatusFailed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Name implements statemachine.State.
func (s Status) Name() string { return string(s) }

func (s Status) String() string { return string(s) }
