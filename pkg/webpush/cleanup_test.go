package webpush_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

func TestCleanupInvalidSubscriptions(t *testing.T) {
	t.Parallel()

	errStore := errors.New("connection reset")

	tests := []struct {
		name        string
		toRemove    []string
		setupMock   func(*MockStore)
		wantRemoved int
		wantFailed  []string
	}{
		{
			name:        "empty list does not touch the store",
			toRemove:    []string{},
			setupMock:   func(*MockStore) {},
			wantRemoved: 0,
			wantFailed:  []string{},
		},
		{
			name:     "batch delete",
			toRemove: []string{"https://push.example.com/a", "https://push.example.com/b"},
			setupMock: func(ms *MockStore) {
				ms.On("DeleteByEndpoints", mock.Anything, []string{"https://push.example.com/a", "https://push.example.com/b"}).Return(2, nil).Once()
			},
			wantRemoved: 2,
			wantFailed:  []string{},
		},
		{
			name:     "duplicates are removed once",
			toRemove: []string{"https://push.example.com/a", "", "https://push.example.com/a"},
			setupMock: func(ms *MockStore) {
				ms.On("DeleteByEndpoints", mock.Anything, []string{"https://push.example.com/a"}).Return(1, nil).Once()
			},
			wantRemoved: 1,
			wantFailed:  []string{},
		},
		{
			name:     "batch failure falls back to single deletes",
			toRemove: []string{"https://push.example.com/a", "https://push.example.com/b", "https://push.example.com/c"},
			setupMock: func(ms *MockStore) {
				ms.On("DeleteByEndpoints", mock.Anything, mock.Anything).Return(0, errStore).Once()
				ms.On("DeleteByEndpoint", mock.Anything, "https://push.example.com/a").Return(nil).Once()
				ms.On("DeleteByEndpoint", mock.Anything, "https://push.example.com/b").Return(webpush.ErrSubscriptionNotFound).Once()
				ms.On("DeleteByEndpoint", mock.Anything, "https://push.example.com/c").Return(errStore).Once()
			},
			wantRemoved: 1,
			wantFailed:  []string{"https://push.example.com/c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms := new(MockStore)
			tt.setupMock(ms)
			c := webpush.NewCleaner(ms)

			report := c.CleanupInvalidSubscriptions(context.Background(), webpush.DeliveryResult{
				SubscriptionsToRemove: tt.toRemove,
			})

			assert.Equal(t, tt.wantRemoved, report.Removed)
			assert.Equal(t, tt.wantFailed, report.FailedIDs)
			assert.NoError(t, report.Err)
			ms.AssertExpectations(t)
		})
	}
}

func TestCleanupExpiredSubscriptions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("removes listed subscriptions", func(t *testing.T) {
		t.Parallel()
		ms := new(MockStore)
		ms.On("ListExpired", mock.Anything, now).Return([]webpush.Subscription{
			{Endpoint: "https://push.example.com/old"},
		}, nil).Once()
		ms.On("DeleteByEndpoints", mock.Anything, []string{"https://push.example.com/old"}).Return(1, nil).Once()

		var hookReason string
		var hookCount int
		c := webpush.NewCleaner(ms,
			webpush.WithCleanerClock(fixedClock(now)),
			webpush.WithOnRemoved(func(_ context.Context, reason string, n int) {
				hookReason, hookCount = reason, n
			}),
		)

		report := c.CleanupExpiredSubscriptions(context.Background())

		assert.Equal(t, 1, report.Removed)
		assert.Empty(t, report.FailedIDs)
		assert.Equal(t, "expired", hookReason)
		assert.Equal(t, 1, hookCount)
		ms.AssertExpectations(t)
	})

	t.Run("nothing expired", func(t *testing.T) {
		t.Parallel()
		ms := new(MockStore)
		ms.On("ListExpired", mock.Anything, now).Return([]webpush.Subscription{}, nil).Once()

		report := webpush.NewCleaner(ms, webpush.WithCleanerClock(fixedClock(now))).
			CleanupExpiredSubscriptions(context.Background())

		assert.Zero(t, report.Removed)
		assert.Equal(t, []string{}, report.FailedIDs)
		ms.AssertExpectations(t)
	})

	t.Run("listing failure is reported", func(t *testing.T) {
		t.Parallel()
		ms := new(MockStore)
		ms.On("ListExpired", mock.Anything, now).Return(nil, errors.New("timeout")).Once()

		report := webpush.NewCleaner(ms, webpush.WithCleanerClock(fixedClock(now))).
			CleanupExpiredSubscriptions(context.Background())

		require.Error(t, report.Err)
		assert.Zero(t, report.Removed)
		assert.Equal(t, []string{}, report.FailedIDs)
		ms.AssertExpectations(t)
	})
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	store := webpush.NewMemoryStore()
	b := newBrowser(t, "https://push.example.com/a", "user-1")
	require.NoError(t, store.Upsert(context.Background(), b.sub))
	c := webpush.NewCleaner(store)

	first := c.CleanupSubscriptionsByID(context.Background(), []string{b.sub.Endpoint})
	second := c.CleanupSubscriptionsByID(context.Background(), []string{b.sub.Endpoint})

	assert.Equal(t, 1, first.Removed)
	assert.Equal(t, 0, second.Removed)
	assert.Empty(t, second.FailedIDs)
	assert.Zero(t, store.Len())
}
