package models

import "time"

type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ModerationItem is one content submission awaiting or having received
// a moderation decision. The engine never sets Status; a human moderator
// does that before the item becomes eligible.
type ModerationItem struct {
	ID       string           `json:"id"`
	Category string           `json:"category"`
	Status   ModerationStatus `json:"status"`

	ScheduledSendAt *time.Time `json:"scheduled_send_at,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`

	// TicketToken is assigned by the list manager when it first held the
	// submission. Required for DISTRIBUTE/REJECT; without it the decision
	// is recorded locally only.
	TicketToken string `json:"sympa_ticket_id,omitempty"`
	// AuthCredential authenticates direct ADD/DEL commands. Not the same
	// thing as the ticket token.
	AuthCredential string `json:"sympa_auth_token,omitempty"`

	Command       string `json:"sympa_command,omitempty"`
	SyncedToSympa bool   `json:"synced_to_sympa"`
}

// ModerationResult is the per-item outcome of one batch pass.
type ModerationResult struct {
	ItemID     string `json:"itemId"`
	Success    bool   `json:"success"`
	LocalOnly  bool   `json:"localOnly,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ModerationSummary aggregates one batch sweep.
type ModerationSummary struct {
	Success   bool               `json:"success"`
	Processed int                `json:"processed"`
	Sent      int                `json:"sent"`
	Failed    int                `json:"failed"`
	Results   []ModerationResult `json:"results"`
}

// ModerationOutcome is the response of the single-item path.
type ModerationOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EmailID string `json:"emailId,omitempty"`
}
