// Package subscription pushes desired membership state to the list
// manager with SUBSCRIBE/SIGNOFF (self-service) or ADD/DEL
// (authenticated) commands.
package subscription

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sympabridge/internal/command"
	"sympabridge/internal/dispatch"
	"sympabridge/internal/metrics"
	"sympabridge/internal/models"
	"sympabridge/internal/registry"
)

// DefaultBatchSize bounds one sync pass when the caller does not.
const DefaultBatchSize = 50

type Store interface {
	PendingSubscriptions(ctx context.Context, profileID string, limit int) ([]models.SubscriptionItem, error)
	MarkSubscriptionSynced(ctx context.Context, id string, status models.SubscriptionStatus) error
	MarkSubscriptionError(ctx context.Context, id, errorMsg string) error
	ListRegistry(ctx context.Context) ([]models.ListRegistryEntry, error)
}

type Synchronizer struct {
	store     Store
	transport dispatch.Transport
	limiter   *rate.Limiter
	sender    string
	log       *zap.Logger
}

// NewSynchronizer wires the sync pass. sender is the service-account
// address used for authenticated ADD/DEL commands; self-service
// commands are sent from the member's own address instead.
func NewSynchronizer(
	store Store,
	transport dispatch.Transport,
	limiter *rate.Limiter,
	sender string,
	log *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		store:     store,
		transport: transport,
		limiter:   limiter,
		sender:    sender,
		log:       log,
	}
}

// Sync runs one pass over items in pending or error state. error is a
// retry state: items stay selectable until a pass succeeds or an
// operator intervenes. profileID narrows the pass to one member;
// batchSize <= 0 falls back to DefaultBatchSize. Items are processed
// sequentially, and one failure never stops the pass.
func (s *Synchronizer) Sync(
	ctx context.Context,
	profileID string,
	batchSize int,
) (*models.SyncSummary, error) {

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	entries, err := s.store.ListRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading list registry: %w", err)
	}
	reg := registry.New(entries)

	items, err := s.store.PendingSubscriptions(ctx, profileID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("querying pending subscriptions: %w", err)
	}

	summary := &models.SyncSummary{
		Success: true,
		Errors:  []models.SyncError{},
	}

	for _, item := range items {
		summary.Processed++

		if syncErr := s.syncOne(ctx, reg, item); syncErr != "" {
			summary.Failed++
			summary.Errors = append(summary.Errors, models.SyncError{
				ItemID: item.ID,
				Error:  syncErr,
			})
			metrics.SubscriptionSyncFailures.Inc()
			continue
		}

		summary.Succeeded++
		metrics.SubscriptionsSynced.Inc()
	}

	s.log.Info("subscription sync finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// syncOne returns an empty string on success, otherwise the failure
// message already persisted on the item.
func (s *Synchronizer) syncOne(
	ctx context.Context,
	reg *registry.Registry,
	item models.SubscriptionItem,
) (syncErr string) {

	defer func() {
		if r := recover(); r != nil {
			syncErr = fmt.Sprintf("unexpected panic: %v", r)
			s.markError(ctx, item.ID, syncErr)
			s.log.Error("subscription item panicked",
				zap.String("item_id", item.ID),
				zap.Any("panic", r),
			)
		}
	}()

	entry, err := reg.Resolve(item.Category)
	if err != nil {
		msg := fmt.Sprintf("category %q: %v", item.Category, err)
		s.markError(ctx, item.ID, msg)
		return msg
	}

	cmd, from, target, err := s.plan(item, entry)
	if err != nil {
		s.markError(ctx, item.ID, err.Error())
		return err.Error()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.markError(ctx, item.ID, err.Error())
			return err.Error()
		}
	}

	providerID, err := s.transport.Submit(ctx, from, cmd)
	if err != nil {
		s.markError(ctx, item.ID, err.Error())
		return err.Error()
	}

	if err := s.store.MarkSubscriptionSynced(ctx, item.ID, target); err != nil {
		msg := fmt.Sprintf("command dispatched but state update failed: %v", err)
		s.log.Error("failed to mark subscription synced",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		return msg
	}

	s.log.Info("subscription command dispatched",
		zap.String("item_id", item.ID),
		zap.String("list", entry.ListName),
		zap.String("direction", string(item.Direction)),
		zap.String("provider_id", providerID),
	)

	return ""
}

// plan picks the command, the sender address, and the status the item
// lands in on success. Self-service commands must originate from the
// member's own address; authenticated ADD/DEL go out from the service
// account.
func (s *Synchronizer) plan(
	item models.SubscriptionItem,
	entry models.ListRegistryEntry,
) (cmd, from string, target models.SubscriptionStatus, err error) {

	leaving := item.Direction == models.DirectionUnsubscribe

	if item.AuthCredential != "" {
		from = s.sender
		if leaving {
			cmd, err = command.Del(entry.ListName, item.Email, item.AuthCredential)
			return cmd, from, models.SubscriptionUnsubscribed, err
		}
		cmd, err = command.Add(entry.ListName, item.Email, item.AuthCredential)
		return cmd, from, models.SubscriptionSubscribed, err
	}

	from = item.Email
	if leaving {
		cmd, err = command.Signoff(entry.ListName)
		return cmd, from, models.SubscriptionUnsubscribed, err
	}
	cmd, err = command.Subscribe(entry.ListName)
	return cmd, from, models.SubscriptionSubscribed, err
}

func (s *Synchronizer) markError(ctx context.Context, itemID, msg string) {
	if err := s.store.MarkSubscriptionError(ctx, itemID, msg); err != nil {
		s.log.Error("failed to record subscription error",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
}
