package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionPending      SubscriptionStatus = "pending"
	SubscriptionSubscribed   SubscriptionStatus = "subscribed"
	SubscriptionUnsubscribed SubscriptionStatus = "unsubscribed"
	SubscriptionError        SubscriptionStatus = "error"
)

type SubscriptionDirection string

const (
	DirectionSubscribe   SubscriptionDirection = "subscribe"
	DirectionUnsubscribe SubscriptionDirection = "unsubscribe"
)

// SubscriptionItem records one member's desired membership state on one
// list. Items in pending or error are picked up by every sync pass;
// error is a retry state, not a terminal one.
type SubscriptionItem struct {
	ID        string                `json:"id"`
	ProfileID string                `json:"profile_id"`
	Email     string                `json:"email"`
	Category  string                `json:"category"`
	Direction SubscriptionDirection `json:"direction"`
	Status    SubscriptionStatus    `json:"status"`

	// AuthCredential, when present, switches the item to the
	// authenticated ADD/DEL path sent from the service account instead
	// of self-service SUBSCRIBE/SIGNOFF from the member's own address.
	AuthCredential string `json:"auth_credential,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	SyncError    string     `json:"sync_error,omitempty"`
}

type SyncError struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

// SyncSummary aggregates one subscription sync pass.
type SyncSummary struct {
	Success   bool        `json:"success"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []SyncError `json:"errors"`
}

// ListRegistryEntry maps a content category to its target mailing list.
type ListRegistryEntry struct {
	Category  string `json:"category"`
	ListName  string `json:"list_name"`
	ListEmail string `json:"list_email"`
}
