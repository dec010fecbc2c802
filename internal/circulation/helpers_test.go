package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeFees struct {
	accounts map[int64]*model.FeeAccount
	err      error
}

func (f *fakeFees) FeeStatus(_ context.Context, borrowerID int64) (*model.FeeAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[borrowerID], nil
}

type fakeReminders struct {
	mu   sync.Mutex
	sent []Reminder
	err  error
}

func (f *fakeReminders) SendReminder(_ context.Context, r Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, r)
	return nil
}

type fixture struct {
	svc       *Service
	db        *sqlx.DB
	clock     *testClock
	fees      *fakeFees
	reminders *fakeReminders
	names     int
}

func newFixture(t *testing.T, tweak ...func(*config.Circulation)) *fixture {
	t.Helper()

	policy := config.Default().Circulation
	for _, fn := range tweak {
		fn(&policy)
	}

	f := &fixture{
		db:        db.NewTestDB(t),
		clock:     &testClock{now: t0},
		fees:      &fakeFees{accounts: map[int64]*model.FeeAccount{}},
		reminders: &fakeReminders{},
	}
	f.svc = NewService(f.db, policy, f.fees, f.reminders,
		WithClock(f.clock.Now),
		WithRetry(WithBaseDelay(time.Millisecond)),
	)
	return f
}

func (f *fixture) title(t *testing.T, copies int, requiresPickup bool) *model.Title {
	t.Helper()
	title, err := store.CreateTitle(context.Background(), f.db, model.Title{
		Title: "Title", TotalCopies: copies, RequiresPickup: requiresPickup,
	})
	require.NoError(t, err)
	return title
}

func (f *fixture) borrower(t *testing.T, class string) *model.User {
	t.Helper()
	f.names++
	u, err := store.CreateUser(context.Background(), f.db, fmt.Sprintf("borrower%d", f.names), "hash", model.RoleBorrower, class)
	require.NoError(t, err)
	return u
}

func (f *fixture) borrow(t *testing.T, borrower *model.User, title *model.Title) *model.Loan {
	t.Helper()
	loan, err := f.svc.RequestBorrow(context.Background(), BorrowRequest{BorrowerID: borrower.ID, TitleID: title.ID})
	require.NoError(t, err)
	return loan
}

func (f *fixture) available(t *testing.T, titleID int64) int {
	t.Helper()
	title, err := store.GetTitle(context.Background(), f.db, titleID)
	require.NoError(t, err)
	return title.AvailableCopies
}

func requireDenied(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	reason, ok := Denied(err)
	require.True(t, ok, "expected a denial, got %v", err)
	require.Equal(t, want, reason)
}

var errUnreachable = errors.New("connection refused")

func intPtr(n int) *int { return &n }
