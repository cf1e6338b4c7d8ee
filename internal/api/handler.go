package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"sympabridge/internal/db"
	"sympabridge/internal/models"
)

// ModerationService is implemented by moderation.Processor.
type ModerationService interface {
	ProcessDue(ctx context.Context) (*models.ModerationSummary, error)
	ModerateItem(ctx context.Context, itemID string, action models.ModerationStatus) (*models.ModerationOutcome, error)
}

// SubscriptionService is implemented by subscription.Synchronizer.
type SubscriptionService interface {
	Sync(ctx context.Context, profileID string, batchSize int) (*models.SyncSummary, error)
}

type Handler struct {
	Moderation    ModerationService
	Subscriptions SubscriptionService
	Log           *zap.Logger
}

type moderateRequest struct {
	ItemID string `json:"itemId"`
	Action string `json:"action"`
}

type syncRequest struct {
	ProfileID string `json:"profileId"`
	BatchSize int    `json:"batchSize"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RunModerationBatch sweeps all due moderation items. The request body
// is ignored; the scheduler posts with none.
func (h *Handler) RunModerationBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := h.Moderation.ProcessDue(r.Context())
	if err != nil {
		h.Log.Error("moderation sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ModerateItem applies one approve/reject decision immediately.
func (h *Handler) ModerateItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	action := models.ModerationStatus(req.Action)
	if action != models.ModerationApproved && action != models.ModerationRejected {
		writeError(w, http.StatusBadRequest, "action must be approved or rejected")
		return
	}

	outcome, err := h.Moderation.ModerateItem(r.Context(), req.ItemID, action)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.Log.Error("single-item moderation failed",
			zap.String("item_id", req.ItemID),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// SyncSubscriptions runs one subscription sync pass. Body is optional;
// an absent body means a full pass with the default batch size.
func (h *Handler) SyncSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	summary, err := h.Subscriptions.Sync(r.Context(), req.ProfileID, req.BatchSize)
	if err != nil {
		h.Log.Error("subscription sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
