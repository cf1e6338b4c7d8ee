// Package moderation reconciles approve/reject decisions with the list
// manager by emailing DISTRIBUTE and REJECT commands.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sympabridge/internal/command"
	"sympabridge/internal/dispatch"
	"sympabridge/internal/metrics"
	"sympabridge/internal/models"
	"sympabridge/internal/registry"
)

// Store is the slice of the content store this package needs. Every
// update is a narrow single-item write; a crash mid-sweep leaves
// finished items stamped and the rest eligible for the next run.
type Store interface {
	DueModerationItems(ctx context.Context) ([]models.ModerationItem, error)
	ModerationItem(ctx context.Context, id string) (*models.ModerationItem, error)
	SetModerationStatus(ctx context.Context, id string, status models.ModerationStatus) error
	MarkModerationSent(ctx context.Context, id, command string, synced bool) error
	RecordModerationError(ctx context.Context, id, errorMsg string) error
	ListRegistry(ctx context.Context) ([]models.ListRegistryEntry, error)
}

var (
	ErrInvalidAction   = errors.New("action must be approved or rejected")
	ErrMissingCategory = errors.New("moderation item has no category")
	ErrAlreadySent     = errors.New("moderation item already dispatched")
)

type Processor struct {
	store     Store
	transport dispatch.Transport
	limiter   *rate.Limiter
	sender    string
	log       *zap.Logger
}

// NewProcessor wires the batch processor. sender is the service-account
// address moderation commands are sent from.
func NewProcessor(
	store Store,
	transport dispatch.Transport,
	limiter *rate.Limiter,
	sender string,
	log *zap.Logger,
) *Processor {
	return &Processor{
		store:     store,
		transport: transport,
		limiter:   limiter,
		sender:    sender,
		log:       log,
	}
}

// ProcessDue runs one batch sweep over all eligible items. Items are
// processed strictly sequentially: the list manager is a single mailbox
// and concurrent delivery risks command reordering. One bad item never
// aborts the sweep; an empty sweep is a successful no-op.
func (p *Processor) ProcessDue(ctx context.Context) (*models.ModerationSummary, error) {

	reg, err := p.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	items, err := p.store.DueModerationItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying due moderation items: %w", err)
	}

	summary := &models.ModerationSummary{
		Success: true,
		Results: []models.ModerationResult{},
	}

	for _, item := range items {
		res := p.processOne(ctx, reg, item)

		summary.Processed++
		if res.Success {
			summary.Sent++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}

	p.log.Info("moderation sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// processOne handles a single item. Panics are converted to a recorded
// per-item failure so the sweep continues.
func (p *Processor) processOne(
	ctx context.Context,
	reg *registry.Registry,
	item models.ModerationItem,
) (res models.ModerationResult) {

	res = models.ModerationResult{ItemID: item.ID}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("unexpected panic: %v", r)
			p.log.Error("moderation item panicked",
				zap.String("item_id", item.ID),
				zap.Any("panic", r),
			)
		}
	}()

	// No category means no route. No later sweep fixes this without an
	// operator, but the item is left unsent so it stays visible.
	if item.Category == "" {
		res.Error = "item has no category, cannot route to a list"
		p.recordFailure(ctx, item.ID, res.Error)
		return res
	}

	// No ticket token means the submission never went through the list
	// manager. The decision is recorded locally and the item is done.
	if item.TicketToken == "" {
		return p.completeLocalOnly(ctx, item.ID, res)
	}

	entry, err := reg.Resolve(item.Category)
	if err != nil {
		res.Error = fmt.Sprintf("category %q: %v", item.Category, err)
		p.recordFailure(ctx, item.ID, res.Error)
		return res
	}

	cmd, err := buildCommand(item.Status, entry.ListName, item.TicketToken)
	if err != nil {
		res.Error = err.Error()
		p.recordFailure(ctx, item.ID, res.Error)
		return res
	}

	providerID, err := p.submit(ctx, p.sender, cmd)
	if err != nil {
		// Item state is untouched so the next sweep retries it.
		res.Error = err.Error()
		p.recordFailure(ctx, item.ID, res.Error)
		metrics.CommandFailures.Inc()
		return res
	}

	if err := p.store.MarkModerationSent(ctx, item.ID, cmd, true); err != nil {
		// The command did go out; the next sweep may duplicate it. Put
		// that in the audit trail, not just the response.
		res.Error = fmt.Sprintf("command dispatched but state update failed: %v", err)
		p.recordFailure(ctx, item.ID, res.Error)
		p.log.Error("failed to mark item sent",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		return res
	}

	metrics.CommandsSent.Inc()

	p.log.Info("moderation command dispatched",
		zap.String("item_id", item.ID),
		zap.String("list", entry.ListName),
		zap.String("provider_id", providerID),
	)

	res.Success = true
	res.ProviderID = providerID
	return res
}

// ModerateItem is the on-demand counterpart of ProcessDue for a single
// item. It has no nightly retry safety net behind it, so it fails fast
// on anything ProcessDue would park for the next sweep.
func (p *Processor) ModerateItem(
	ctx context.Context,
	itemID string,
	action models.ModerationStatus,
) (*models.ModerationOutcome, error) {

	if action != models.ModerationApproved && action != models.ModerationRejected {
		return nil, ErrInvalidAction
	}

	item, err := p.store.ModerationItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.SentAt != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrAlreadySent)
	}

	if item.Category == "" {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrMissingCategory)
	}

	reg, err := p.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := reg.Resolve(item.Category)
	if err != nil {
		return nil, fmt.Errorf("item %s category %q: %w", itemID, item.Category, err)
	}

	if err := p.store.SetModerationStatus(ctx, itemID, action); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	if item.TicketToken == "" {
		if err := p.store.MarkModerationSent(ctx, itemID, "", false); err != nil {
			return nil, fmt.Errorf("recording local-only moderation: %w", err)
		}
		metrics.LocalOnlyModerations.Inc()
		return &models.ModerationOutcome{
			Success: true,
			Message: "moderation recorded locally; no ticket token, no command sent",
		}, nil
	}

	cmd, err := buildCommand(action, entry.ListName, item.TicketToken)
	if err != nil {
		return nil, err
	}

	providerID, err := p.submit(ctx, p.sender, cmd)
	if err != nil {
		if dbErr := p.store.RecordModerationError(ctx, itemID, err.Error()); dbErr != nil {
			p.log.Error("failed to record moderation error",
				zap.String("item_id", itemID),
				zap.Error(dbErr),
			)
		}
		metrics.CommandFailures.Inc()
		return nil, fmt.Errorf("dispatching %s command: %w", action, err)
	}

	if err := p.store.MarkModerationSent(ctx, itemID, cmd, true); err != nil {
		p.recordFailure(ctx, itemID, fmt.Sprintf("command dispatched but state update failed: %v", err))
		return nil, fmt.Errorf("command dispatched but state update failed: %w", err)
	}

	metrics.CommandsSent.Inc()

	p.log.Info("moderation command dispatched",
		zap.String("item_id", itemID),
		zap.String("list", entry.ListName),
		zap.String("provider_id", providerID),
	)

	return &models.ModerationOutcome{
		Success: true,
		Message: fmt.Sprintf("%s command sent to %s", action, entry.ListName),
		EmailID: providerID,
	}, nil
}

func (p *Processor) loadRegistry(ctx context.Context) (*registry.Registry, error) {
	entries, err := p.store.ListRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading list registry: %w", err)
	}
	return registry.New(entries), nil
}

func (p *Processor) submit(ctx context.Context, from, cmd string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return p.transport.Submit(ctx, from, cmd)
}

func (p *Processor) completeLocalOnly(
	ctx context.Context,
	itemID string,
	res models.ModerationResult,
) models.ModerationResult {

	if err := p.store.MarkModerationSent(ctx, itemID, "", false); err != nil {
		res.Error = fmt.Sprintf("recording local-only moderation: %v", err)
		return res
	}

	metrics.LocalOnlyModerations.Inc()

	p.log.Info("moderation recorded locally, no ticket token",
		zap.String("item_id", itemID),
	)

	res.Success = true
	res.LocalOnly = true
	return res
}

func (p *Processor) recordFailure(ctx context.Context, itemID, msg string) {
	if err := p.store.RecordModerationError(ctx, itemID, msg); err != nil {
		p.log.Error("failed to record moderation error",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
}

func buildCommand(status models.ModerationStatus, listName, ticketToken string) (string, error) {
	switch status {
	case models.ModerationApproved:
		return command.Distribute(listName, ticketToken)
	case models.ModerationRejected:
		return command.Reject(listName, ticketToken)
	default:
		return "", fmt.Errorf("status %q is not a moderation decision", status)
	}
}
