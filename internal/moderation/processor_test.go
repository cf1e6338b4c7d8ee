package moderation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sympabridge/internal/db"
	"sympabridge/internal/models"
)

type submitCall struct {
	from    string
	command string
}

type fakeTransport struct {
	calls         []submitCall
	failCommands  map[string]error
	panicCommands map[string]bool
}

func (f *fakeTransport) Submit(_ context.Context, from, command string) (string, error) {
	f.calls = append(f.calls, submitCall{from: from, command: command})
	if f.panicCommands[command] {
		panic("transport wedged")
	}
	if err, ok := f.failCommands[command]; ok {
		return "", err
	}
	return fmt.Sprintf("prov-%d", len(f.calls)), nil
}

type fakeStore struct {
	items   map[string]*models.ModerationItem
	order   []string
	entries []models.ListRegistryEntry

	recordedErrors map[string]string
	markSentErr    error
}

func newFakeStore(entries []models.ListRegistryEntry, items ...*models.ModerationItem) *fakeStore {
	s := &fakeStore{
		items:          map[string]*models.ModerationItem{},
		entries:        entries,
		recordedErrors: map[string]string{},
	}
	for _, it := range items {
		s.items[it.ID] = it
		s.order = append(s.order, it.ID)
	}
	return s
}

func (s *fakeStore) DueModerationItems(context.Context) ([]models.ModerationItem, error) {
	var due []models.ModerationItem
	now := time.Now()
	for _, id := range s.order {
		it := s.items[id]
		if it.ScheduledSendAt == nil || it.ScheduledSendAt.After(now) || it.SentAt != nil {
			continue
		}
		if it.Status != models.ModerationApproved && it.Status != models.ModerationRejected {
			continue
		}
		due = append(due, *it)
	}
	return due, nil
}

func (s *fakeStore) ModerationItem(_ context.Context, id string) (*models.ModerationItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *fakeStore) SetModerationStatus(_ context.Context, id string, status models.ModerationStatus) error {
	s.items[id].Status = status
	return nil
}

func (s *fakeStore) MarkModerationSent(_ context.Context, id, command string, synced bool) error {
	if s.markSentErr != nil {
		return s.markSentErr
	}
	now := time.Now()
	it := s.items[id]
	it.SentAt = &now
	it.Command = command
	it.SyncedToSympa = synced
	return nil
}

func (s *fakeStore) RecordModerationError(_ context.Context, id, errorMsg string) error {
	s.recordedErrors[id] = errorMsg
	return nil
}

func (s *fakeStore) ListRegistry(context.Context) ([]models.ListRegistryEntry, error) {
	return s.entries, nil
}

func pastTime() *time.Time {
	t := time.Now().Add(-time.Hour)
	return &t
}

func testEntries() []models.ListRegistryEntry {
	return []models.ListRegistryEntry{
		{Category: "news", ListName: "news", ListEmail: "news@lists.example.org"},
		{Category: "annonces", ListName: "rezoprospec", ListEmail: "rezoprospec@lists.example.org"},
	}
}

func newTestProcessor(store *fakeStore, transport *fakeTransport) *Processor {
	return NewProcessor(store, transport, nil, "moderator@example.org", zap.NewNop())
}

func TestProcessDueEmptySweep(t *testing.T) {
	store := newFakeStore(testEntries())
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, transport.calls)
}

func TestProcessDueMixedBatch(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "no-category", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T9",
		},
		&models.ModerationItem{
			ID: "no-ticket", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(),
		},
		&models.ModerationItem{
			ID: "valid", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	// Only the fully valid item reaches the transport.
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "DISTRIBUTE news T1", transport.calls[0].command)
	assert.Equal(t, "moderator@example.org", transport.calls[0].from)

	// Local-only outcome: stamped sent, never synced.
	noTicket := store.items["no-ticket"]
	require.NotNil(t, noTicket.SentAt)
	assert.False(t, noTicket.SyncedToSympa)

	// Routing failure: left unsent, error recorded for the operator.
	noCategory := store.items["no-category"]
	assert.Nil(t, noCategory.SentAt)
	assert.NotEmpty(t, store.recordedErrors["no-category"])

	valid := store.items["valid"]
	require.NotNil(t, valid.SentAt)
	assert.True(t, valid.SyncedToSympa)
	assert.Equal(t, "DISTRIBUTE news T1", valid.Command)
}

func TestProcessDueIdempotent(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "a", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	first, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)

	assert.Len(t, transport.calls, 1)
}

func TestProcessDueRejectedItem(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "r", Category: "annonces", Status: models.ModerationRejected,
			ScheduledSendAt: pastTime(), TicketToken: "ABC123",
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "REJECT rezoprospec ABC123", transport.calls[0].command)
}

func TestProcessDuePartialFailureIsolation(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "one", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
		&models.ModerationItem{
			ID: "two", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T2",
		},
		&models.ModerationItem{
			ID: "three", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T3",
		},
	)
	transport := &fakeTransport{
		failCommands: map[string]error{
			"DISTRIBUTE news T2": fmt.Errorf("smtp send error: connection reset"),
		},
	}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	// The failed item keeps its pre-attempt state so the next sweep
	// picks it up again.
	two := store.items["two"]
	assert.Nil(t, two.SentAt)
	assert.Equal(t, models.ModerationApproved, two.Status)
	assert.Contains(t, store.recordedErrors["two"], "connection reset")

	// Next sweep retries only the failed item.
	transport.failCommands = nil
	retry, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Processed)
	assert.Equal(t, 1, retry.Sent)
}

func TestProcessDuePanicIsolation(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "one", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
		&models.ModerationItem{
			ID: "two", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T2",
		},
		&models.ModerationItem{
			ID: "three", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T3",
		},
	)
	transport := &fakeTransport{
		panicCommands: map[string]bool{"DISTRIBUTE news T2": true},
	}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	require.Len(t, summary.Results, 3)
	assert.Contains(t, summary.Results[1].Error, "unexpected panic")

	// The panicking item keeps its pre-attempt state; the rest of the
	// sweep still went through.
	assert.Nil(t, store.items["two"].SentAt)
	assert.NotNil(t, store.items["one"].SentAt)
	assert.NotNil(t, store.items["three"].SentAt)
}

func TestProcessDueMarkSentFailureAudited(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "a", Category: "news", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
	)
	store.markSentErr = fmt.Errorf("write timeout")
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, transport.calls, 1)

	// The command went out but the stamp failed: the possible duplicate
	// must be visible in the store's audit trail, not only the response.
	assert.Contains(t, summary.Results[0].Error, "command dispatched but state update failed")
	assert.Contains(t, store.recordedErrors["a"], "command dispatched but state update failed")
	assert.Contains(t, store.recordedErrors["a"], "write timeout")
}

func TestProcessDueUnknownCategory(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "x", Category: "unmapped", Status: models.ModerationApproved,
			ScheduledSendAt: pastTime(), TicketToken: "T1",
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	summary, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, transport.calls)
	assert.Nil(t, store.items["x"].SentAt)
}

func TestModerateItem(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "a", Category: "news", Status: models.ModerationPending,
			TicketToken: "T1",
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	outcome, err := p.ModerateItem(context.Background(), "a", models.ModerationApproved)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.EmailID)

	require.Len(t, transport.calls, 1)
	assert.Equal(t, "DISTRIBUTE news T1", transport.calls[0].command)

	item := store.items["a"]
	assert.Equal(t, models.ModerationApproved, item.Status)
	require.NotNil(t, item.SentAt)
	assert.True(t, item.SyncedToSympa)
}

func TestModerateItemInvalidAction(t *testing.T) {
	p := newTestProcessor(newFakeStore(testEntries()), &fakeTransport{})

	_, err := p.ModerateItem(context.Background(), "a", models.ModerationPending)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestModerateItemNotFound(t *testing.T) {
	p := newTestProcessor(newFakeStore(testEntries()), &fakeTransport{})

	_, err := p.ModerateItem(context.Background(), "ghost", models.ModerationApproved)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestModerateItemAlreadySent(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "a", Category: "news", Status: models.ModerationApproved,
			TicketToken: "T1", SentAt: pastTime(), SyncedToSympa: true,
		},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	_, err := p.ModerateItem(context.Background(), "a", models.ModerationApproved)
	assert.ErrorIs(t, err, ErrAlreadySent)
	assert.Empty(t, transport.calls)
}

func TestModerateItemMissingCategoryFailsFast(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{ID: "a", Status: models.ModerationPending, TicketToken: "T1"},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	_, err := p.ModerateItem(context.Background(), "a", models.ModerationApproved)
	assert.ErrorIs(t, err, ErrMissingCategory)
	assert.Empty(t, transport.calls)
}

func TestModerateItemLocalOnly(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{ID: "a", Category: "news", Status: models.ModerationPending},
	)
	transport := &fakeTransport{}
	p := newTestProcessor(store, transport)

	outcome, err := p.ModerateItem(context.Background(), "a", models.ModerationRejected)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.EmailID)
	assert.Empty(t, transport.calls)

	item := store.items["a"]
	assert.Equal(t, models.ModerationRejected, item.Status)
	require.NotNil(t, item.SentAt)
	assert.False(t, item.SyncedToSympa)
}

func TestModerateItemDispatchFailure(t *testing.T) {
	store := newFakeStore(testEntries(),
		&models.ModerationItem{
			ID: "a", Category: "news", Status: models.ModerationPending,
			TicketToken: "T1",
		},
	)
	transport := &fakeTransport{
		failCommands: map[string]error{
			"DISTRIBUTE news T1": fmt.Errorf("smtp send error: timeout"),
		},
	}
	p := newTestProcessor(store, transport)

	_, err := p.ModerateItem(context.Background(), "a", models.ModerationApproved)
	require.Error(t, err)

	assert.Nil(t, store.items["a"].SentAt)
	assert.Contains(t, store.recordedErrors["a"], "timeout")
}
