package ratelimit

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/inreach/pkg/clock"
)

type fakeCounter struct {
	sent  int
	err   error
	calls int
}

func (c *fakeCounter) CountSentToday(ctx context.Context) (int, error) {
	c.calls++
	return c.sent, c.err
}

func newLimiter(t *testing.T, counter SentCounter, limit int, clk clock.Clock) *Limiter {
	t.Helper()
	l, err := New(counter, limit, clk)
	require.NoError(t, err)
	return l
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		sent  int
		n     int
		want  int
	}{
		{"room for all", 10, 0, 3, 3},
		{"partial", 5, 3, 3, 2},
		{"exact boundary", 5, 5, 3, 0},
		{"over the limit", 5, 7, 3, 0},
		{"zero requested", 5, 0, 0, 0},
		{"fills exactly", 5, 2, 3, 3},
		{"unlimited", 0, 100, 4, 4},
		{"negative limit is unlimited", -1, 100, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLimiter(t, &fakeCounter{sent: tt.sent}, tt.limit, clock.NewFake(time.Now()))
			got, err := l.Reserve(context.Background(), tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReserve_NeverExceedsRemaining(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		limit := rng.IntN(20) + 1
		sent := rng.IntN(25)
		n := rng.IntN(15)

		l := newLimiter(t, &fakeCounter{sent: sent}, limit, clock.NewFake(time.Now()))
		got, err := l.Reserve(context.Background(), n)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, n)
		assert.LessOrEqual(t, got, max(0, limit-sent), "limit=%d sent=%d n=%d", limit, sent, n)
	}
}

func TestReserve_ReadsLedgerEveryCall(t *testing.T) {
	counter := &fakeCounter{sent: 0}
	l := newLimiter(t, counter, 5, clock.NewFake(time.Now()))

	got, err := l.Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	counter.sent = 4
	got, err = l.Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, 2, counter.calls)
}

func TestReserve_CounterError(t *testing.T) {
	l := newLimiter(t, &fakeCounter{err: errors.New("database is locked")}, 5, clock.NewFake(time.Now()))
	_, err := l.Reserve(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestWaitForNextWindow(t *testing.T) {
	start := time.Date(2026, 3, 14, 22, 30, 0, 0, time.Local)
	fake := clock.NewFake(start)
	l := newLimiter(t, &fakeCounter{}, 5, fake)

	next, err := l.WaitForNextWindow(context.Background())
	require.NoError(t, err)

	midnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)
	assert.True(t, next.Equal(midnight), "next = %s", next)
	assert.Equal(t, []time.Duration{90 * time.Minute}, fake.Sleeps())
	assert.False(t, fake.Now().Before(midnight))
}

func TestWaitForNextWindow_AtMidnight(t *testing.T) {
	midnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)
	l := newLimiter(t, &fakeCounter{}, 5, clock.NewFake(midnight))

	assert.True(t, l.NextWindow().Equal(midnight.AddDate(0, 0, 1)), "window is strictly after now")
}

func TestWaitForNextWindow_Cancelled(t *testing.T) {
	l := newLimiter(t, &fakeCounter{}, 5, clock.NewFake(time.Now()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.WaitForNextWindow(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestQuota_Remaining(t *testing.T) {
	assert.Equal(t, 2, Quota{Sent: 3, Limit: 5}.Remaining())
	assert.Equal(t, 0, Quota{Sent: 9, Limit: 5}.Remaining())
	assert.Equal(t, -1, Quota{Sent: 9, Limit: 0}.Remaining())
}
