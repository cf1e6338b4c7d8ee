package db

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sympabridge/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	Pool *pgxpool.Pool
}

// New opens a connection pool, retrying the initial ping with
// exponential backoff so a restarting database does not kill the
// service at boot.
func New(ctx context.Context, conn string) (*Store, error) {

	var pool *pgxpool.Pool

	operation := func() error {
		p, err := pgxpool.New(ctx, conn)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// DueModerationItems returns items whose decision is made, whose send
// time has passed, and that have never been dispatched. The sent_at
// filter is what makes re-entrant sweeps idempotent.
func (s *Store) DueModerationItems(ctx context.Context) ([]models.ModerationItem, error) {

	rows, err := s.Pool.Query(ctx,
		`SELECT id, COALESCE(category,''), status,
		        scheduled_send_at, sent_at,
		        COALESCE(sympa_ticket_id,''), COALESCE(sympa_auth_token,''),
		        COALESCE(sympa_command,''), synced_to_sympa
		 FROM moderation_items
		 WHERE scheduled_send_at IS NOT NULL
		   AND scheduled_send_at <= NOW()
		   AND sent_at IS NULL
		   AND status IN ($1, $2)
		 ORDER BY scheduled_send_at ASC`,
		models.ModerationApproved,
		models.ModerationRejected,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ModerationItem
	for rows.Next() {
		var it models.ModerationItem
		if err := rows.Scan(
			&it.ID, &it.Category, &it.Status,
			&it.ScheduledSendAt, &it.SentAt,
			&it.TicketToken, &it.AuthCredential,
			&it.Command, &it.SyncedToSympa,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (s *Store) ModerationItem(ctx context.Context, id string) (*models.ModerationItem, error) {

	var it models.ModerationItem

	err := s.Pool.QueryRow(ctx,
		`SELECT id, COALESCE(category,''), status,
		        scheduled_send_at, sent_at,
		        COALESCE(sympa_ticket_id,''), COALESCE(sympa_auth_token,''),
		        COALESCE(sympa_command,''), synced_to_sympa
		 FROM moderation_items
		 WHERE id=$1`,
		id,
	).Scan(
		&it.ID, &it.Category, &it.Status,
		&it.ScheduledSendAt, &it.SentAt,
		&it.TicketToken, &it.AuthCredential,
		&it.Command, &it.SyncedToSympa,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &it, nil
}

func (s *Store) SetModerationStatus(
	ctx context.Context,
	id string,
	status models.ModerationStatus,
) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE moderation_items
		 SET status=$1,
		     updated_at=NOW()
		 WHERE id=$2`,
		status,
		id,
	)

	return err
}

// MarkModerationSent stamps sent_at exactly once. synced=false records
// the local-only outcome where no command could be built.
func (s *Store) MarkModerationSent(
	ctx context.Context,
	id string,
	command string,
	synced bool,
) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE moderation_items
		 SET sent_at=NOW(),
		     sympa_command=$1,
		     synced_to_sympa=$2,
		     updated_at=NOW()
		 WHERE id=$3`,
		command,
		synced,
		id,
	)

	return err
}

// RecordModerationError writes the item's audit trail without touching
// status or sent_at, so the item stays eligible for the next sweep.
func (s *Store) RecordModerationError(
	ctx context.Context,
	id string,
	errorMsg string,
) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE moderation_items
		 SET moderation_error=$1,
		     updated_at=NOW()
		 WHERE id=$2`,
		errorMsg,
		id,
	)

	return err
}

// PendingSubscriptions returns items in pending or error, oldest first.
// profileID narrows the pass to one member when non-empty.
func (s *Store) PendingSubscriptions(
	ctx context.Context,
	profileID string,
	limit int,
) ([]models.SubscriptionItem, error) {

	query := `SELECT id, profile_id, email, COALESCE(category,''),
	                 direction, status, COALESCE(auth_credential,''),
	                 last_synced_at, COALESCE(sync_error,'')
	          FROM subscription_items
	          WHERE status IN ($1, $2)`
	args := []any{models.SubscriptionPending, models.SubscriptionError}

	if profileID != "" {
		query += ` AND profile_id=$3`
		args = append(args, profileID)
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		args = append(args, limit)
		if profileID != "" {
			query += ` LIMIT $4`
		} else {
			query += ` LIMIT $3`
		}
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.SubscriptionItem
	for rows.Next() {
		var it models.SubscriptionItem
		if err := rows.Scan(
			&it.ID, &it.ProfileID, &it.Email, &it.Category,
			&it.Direction, &it.Status, &it.AuthCredential,
			&it.LastSyncedAt, &it.SyncError,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (s *Store) MarkSubscriptionSynced(
	ctx context.Context,
	id string,
	status models.SubscriptionStatus,
) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE subscription_items
		 SET status=$1,
		     last_synced_at=NOW(),
		     sync_error=NULL,
		     updated_at=NOW()
		 WHERE id=$2`,
		status,
		id,
	)

	return err
}

func (s *Store) MarkSubscriptionError(
	ctx context.Context,
	id string,
	errorMsg string,
) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE subscription_items
		 SET status=$1,
		     sync_error=$2,
		     last_synced_at=NOW(),
		     updated_at=NOW()
		 WHERE id=$3`,
		models.SubscriptionError,
		errorMsg,
		id,
	)

	return err
}

// ListRegistry loads the static category to list mapping. The engine
// reads it once per run and never writes it.
func (s *Store) ListRegistry(ctx context.Context) ([]models.ListRegistryEntry, error) {

	rows, err := s.Pool.Query(ctx,
		`SELECT category, list_name, list_email
		 FROM list_registry`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ListRegistryEntry
	for rows.Next() {
		var e models.ListRegistryEntry
		if err := rows.Scan(&e.Category, &e.ListName, &e.ListEmail); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
